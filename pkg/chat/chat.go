// Package chat models the Minecraft chat-component JSON the gateway uses as
// its only UI surface. Components support nested extras plus click and hover
// events, which is what makes the server list and wizards interactive.
package chat

// Standard chat colors understood by 1.8 clients.
const (
	ColorRed    = "red"
	ColorGold   = "gold"
	ColorGreen  = "green"
	ColorAqua   = "aqua"
	ColorYellow = "yellow"
	ColorGray   = "gray"
	ColorWhite  = "white"
	ColorReset  = "reset"
)

// Separator is the horizontal rule used around menus and help output.
const Separator = "======================================"

// ClickEvent triggers a client-side action when the component is clicked.
type ClickEvent struct {
	Action string `json:"action"` // run_command, suggest_command, open_url
	Value  string `json:"value"`
}

// HoverEvent shows tooltip text when the component is hovered.
type HoverEvent struct {
	Action string `json:"action"` // show_text
	Value  string `json:"value"`
}

// Component is one node of a chat message tree.
type Component struct {
	Text  string      `json:"text"`
	Color string      `json:"color,omitempty"`
	Extra []Component `json:"extra,omitempty"`
	Click *ClickEvent `json:"clickEvent,omitempty"`
	Hover *HoverEvent `json:"hoverEvent,omitempty"`
}

// Text builds a plain colored component.
func Text(text, color string) Component {
	return Component{Text: text, Color: color}
}

// Append returns c with extra components appended.
func (c Component) Append(extra ...Component) Component {
	c.Extra = append(c.Extra, extra...)
	return c
}

// WithRunCommand makes the component execute cmd when clicked.
func (c Component) WithRunCommand(cmd, tooltip string) Component {
	c.Click = &ClickEvent{Action: "run_command", Value: cmd}
	if tooltip != "" {
		c.Hover = &HoverEvent{Action: "show_text", Value: tooltip}
	}
	return c
}

// WithSuggestCommand makes the component paste cmd into the chat box.
func (c Component) WithSuggestCommand(cmd, tooltip string) Component {
	c.Click = &ClickEvent{Action: "suggest_command", Value: cmd}
	if tooltip != "" {
		c.Hover = &HoverEvent{Action: "show_text", Value: tooltip}
	}
	return c
}

// WithOpenURL makes the component open url in a new window.
func (c Component) WithOpenURL(url, tooltip string) Component {
	c.Click = &ClickEvent{Action: "open_url", Value: url}
	if tooltip != "" {
		c.Hover = &HoverEvent{Action: "show_text", Value: tooltip}
	}
	return c
}
