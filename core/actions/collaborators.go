package actions

import "context"

type ScreenReader interface {
	ReadScreen(ctx context.Context) (string, error)
}

type Messenger interface {
	SendMessage(ctx context.Context, recipient string, text string) error
}

// UIAutomation drives the user interface of the foreground application.
type UIAutomation interface {
	Click(ctx context.Context, label string) error
	TypeText(ctx context.Context, text string) error
	Scroll(ctx context.Context, direction string) error
	Navigate(ctx context.Context, destination string) error
}

type Browser interface {
	Search(ctx context.Context, query string) error
	OpenURL(ctx context.Context, url string) error
}

type Battery struct {
	Percent  int
	Charging bool
}

type DeviceInfo interface {
	Battery(ctx context.Context) (Battery, error)
	// Summary is a short free-form description of the device state.
	Summary(ctx context.Context) (string, error)
}

type AppLauncher interface {
	Launch(ctx context.Context, name string) error
}
