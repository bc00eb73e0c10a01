package core

import (
	"encoding/json"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// OptionExtractor simplifies extraction of options for Discord commands
type OptionExtractor struct {
	options []*discordgo.ApplicationCommandInteractionDataOption
}

// NewOptionExtractor creates a new option extractor
func NewOptionExtractor(options []*discordgo.ApplicationCommandInteractionDataOption) *OptionExtractor {
	return &OptionExtractor{options: options}
}

func (e *OptionExtractor) find(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range e.options {
		if opt != nil && opt.Name == name {
			return opt
		}
	}
	return nil
}

// String extracts a trimmed string option by name
func (e *OptionExtractor) String(name string) string {
	if opt := e.find(name); opt != nil {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

// StringPtr returns nil when the option was not given. The value is not
// trimmed.
func (e *OptionExtractor) StringPtr(name string) *string {
	opt := e.find(name)
	if opt == nil {
		return nil
	}
	v := opt.StringValue()
	return &v
}

// Int extracts an integer option by name
func (e *OptionExtractor) Int(name string) int64 {
	if opt := e.find(name); opt != nil {
		return opt.IntValue()
	}
	return 0
}

// HasOption checks whether an option exists
func (e *OptionExtractor) HasOption(name string) bool {
	return e.find(name) != nil
}

// CompareCommands compares two commands to check if they are semantically equal
func CompareCommands(a, b *discordgo.ApplicationCommand) bool {
	type comparable struct {
		Name        string                                `json:"name"`
		Description string                                `json:"description"`
		Options     []*discordgo.ApplicationCommandOption `json:"options"`
		Permissions *int64                                `json:"default_member_permissions"`
	}
	ba, _ := json.Marshal(comparable{a.Name, a.Description, a.Options, a.DefaultMemberPermissions})
	bb, _ := json.Marshal(comparable{b.Name, b.Description, b.Options, b.DefaultMemberPermissions})
	return string(ba) == string(bb)
}
