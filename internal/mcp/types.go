package mcp

// ListWindowsInput is the input for the list_windows tool.
type ListWindowsInput struct {
	ApplicationID  string `json:"application_id,omitempty" jsonschema:"Only list windows of this canonical application id"`
	IncludeClosing bool   `json:"include_closing,omitempty" jsonschema:"Include windows that are already closing (default: false)"`
}

// WindowSummary describes one window.
type WindowSummary struct {
	Index         int            `json:"index"`
	Handle        string         `json:"handle"`
	ApplicationID string         `json:"application_id"`
	PID           int            `json:"pid,omitempty"`
	Fullscreen    bool           `json:"fullscreen"`
	Mapped        bool           `json:"mapped"`
	Closing       bool           `json:"closing"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// ListWindowsOutput is the output for the list_windows tool.
type ListWindowsOutput struct {
	Windows []WindowSummary `json:"windows"`
	Total   int             `json:"total"`
}

// GetWindowPropertiesInput is the input for the get_window_properties tool.
type GetWindowPropertiesInput struct {
	Handle string `json:"handle" jsonschema:"Window handle as printed by list_windows (e.g. x11:0x3a00007 or inprocess:4)"`
	Key    string `json:"key,omitempty" jsonschema:"Read a single property instead of all of them"`
}

// GetWindowPropertiesOutput is the output for the get_window_properties tool.
type GetWindowPropertiesOutput struct {
	Handle     string         `json:"handle"`
	Found      bool           `json:"found"`
	Properties map[string]any `json:"properties"`
}

// SetWindowPropertyInput is the input for the set_window_property tool.
type SetWindowPropertyInput struct {
	Handle string `json:"handle" jsonschema:"Window handle as printed by list_windows"`
	Key    string `json:"key" jsonschema:"Property name"`
	Value  any    `json:"value" jsonschema:"Property value; any JSON value"`
}

// SetWindowPropertyOutput is the output for the set_window_property tool.
type SetWindowPropertyOutput struct {
	Handle  string `json:"handle"`
	Applied bool   `json:"applied"`
}

// ReleaseWindowInput is the input for the release_window tool.
type ReleaseWindowInput struct {
	Handle string `json:"handle" jsonschema:"Window handle as printed by list_windows"`
}

// ReleaseWindowOutput is the output for the release_window tool.
type ReleaseWindowOutput struct {
	Handle   string `json:"handle"`
	Released bool   `json:"released"`
}

// MakeScreenshotInput is the input for the make_screenshot tool.
type MakeScreenshotInput struct {
	Filename string `json:"filename" jsonschema:"Output file pattern; %s is replaced by the output index and %i by the application id. Relative names land in the daemon's screenshot directory"`
	Selector string `json:"selector,omitempty" jsonschema:"appId[key=value]:output; empty captures every output"`
}

// MakeScreenshotOutput is the output for the make_screenshot tool.
type MakeScreenshotOutput struct {
	OK       bool   `json:"ok"`
	Filename string `json:"filename"`
}
