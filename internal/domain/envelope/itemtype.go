package envelope

// ItemKind is the closed set of item types the ingestion pipeline dispatches on.
type ItemKind int

const (
	KindUnknown ItemKind = iota
	KindEvent
	KindSession
	KindSessions
	KindTransaction
	KindAttachment
	KindClientReport
)

// ItemType is decided once per item. Name carries the declared string so
// unknown types can still be reported back to the client.
type ItemType struct {
	Kind ItemKind
	Name string
}

var knownKinds = map[string]ItemKind{
	"event":         KindEvent,
	"session":       KindSession,
	"sessions":      KindSessions,
	"transaction":   KindTransaction,
	"attachment":    KindAttachment,
	"client_report": KindClientReport,
}

// ParseItemType maps the declared item header type to its variant.
func ParseItemType(s string) ItemType {
	if k, ok := knownKinds[s]; ok {
		return ItemType{Kind: k, Name: s}
	}
	return ItemType{Kind: KindUnknown, Name: s}
}

// Token is the string reported in ingestion responses, e.g. "event" or
// "unknown:profile".
func (t ItemType) Token() string {
	if t.Kind == KindUnknown {
		return "unknown:" + t.Name
	}
	return t.Name
}

func (t ItemType) String() string { return t.Token() }
