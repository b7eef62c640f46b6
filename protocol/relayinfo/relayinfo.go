// Package relayinfo builds the NIP-11 relay information document the
// gateway serves for its own address and, per the supplemented NIP-11
// surfacing feature (spec §9 supplement), on behalf of replica-only relays
// it fronts.
package relayinfo

// NIP numbers the gateway can truthfully advertise support for.
const (
	BasicProtocol                  = 1
	Authentication                 = 42
	EventDeletion                  = 9
	RelayInformationDocument       = 11
	GenericTagQueries              = 12
	EventTreatment                 = 16
	ParameterizedReplaceableEvents = 33
)

// List is a sortable set of NIP numbers, used for the "supported_nips" field.
type List []int

func (l List) Len() int           { return len(l) }
func (l List) Less(i, j int) bool { return l[i] < l[j] }
func (l List) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }

// GetList builds a List out of the given NIP numbers.
func GetList(nips ...int) List {
	l := make(List, len(nips))
	copy(l, nips)
	return l
}

// Limits is the NIP-11 "limitation" object.
type Limits struct {
	MaxMessageLength int  `json:"max_message_length,omitempty"`
	MaxSubscriptions int  `json:"max_subscriptions,omitempty"`
	MaxFilters       int  `json:"max_filters,omitempty"`
	MaxLimit         int  `json:"max_limit,omitempty"`
	AuthRequired     bool `json:"auth_required"`
	RestrictedWrites bool `json:"restricted_writes,omitempty"`
}

// T is the full NIP-11 relay information document.
type T struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Pubkey      string `json:"pubkey,omitempty"`
	Contact     string `json:"contact,omitempty"`
	Nips        List   `json:"supported_nips"`
	Software    string `json:"software,omitempty"`
	Version     string `json:"version,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Limitation  Limits `json:"limitation"`
}
