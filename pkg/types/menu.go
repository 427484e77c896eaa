package types

import "github.com/shopspring/decimal"

// MenuChoice is one selectable value of a MenuOption with its price delta.
type MenuChoice struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// MenuOption groups choices such as size or extras.
type MenuOption struct {
	Name        string       `json:"name"`
	Required    bool         `json:"required"`
	MultiSelect bool         `json:"multi_select"`
	Choices     []MenuChoice `json:"choices"`
}

// FindChoice returns the named choice of the named option.
func FindChoice(options []MenuOption, optionName, choiceName string) (MenuChoice, bool) {
	for _, opt := range options {
		if opt.Name != optionName {
			continue
		}
		for _, choice := range opt.Choices {
			if choice.Name == choiceName {
				return choice, true
			}
		}
	}
	return MenuChoice{}, false
}

// SelectedOption records a choice made on an order line with its price at order time.
type SelectedOption struct {
	Name   string          `json:"name"`
	Choice string          `json:"choice"`
	Price  decimal.Decimal `json:"price"`
}

// NotificationAction is an optional call to action attached to a notification.
type NotificationAction struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	Label string `json:"label,omitempty"`
}
