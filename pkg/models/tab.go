package models

// Tab is a flow tab: the container generated flows are attached to.
type Tab struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
	Info     string `json:"info,omitempty"`
}

// AsNode renders the tab in node wire format, as the editor expects tabs to
// appear inside a flow array.
func (t *Tab) AsNode() *Node {
	return &Node{
		ID:   t.ID,
		Type: NodeTypeTab,
		Extra: map[string]any{
			"label":    t.Label,
			"disabled": t.Disabled,
		},
	}
}
