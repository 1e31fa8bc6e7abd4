package diff

// Kind represents the kind of a single structural difference
type Kind string

const (
	// Added indicates a value present only on the branch side
	Added Kind = "added"
	// Removed indicates a value present only on the base side
	Removed Kind = "removed"
	// Changed is a presentation-layer kind: reports may collapse a
	// removed+added pair at the same path into one changed row. The
	// engine itself only emits Added and Removed.
	Changed Kind = "changed"
)

// Entry represents one structural difference at a dot/bracket path,
// e.g. tools[search].inputSchema.properties.limit.type
type Entry struct {
	Path     string `json:"path"`
	Kind     Kind   `json:"kind"`
	OldValue string `json:"oldValue,omitempty"`
	NewValue string `json:"newValue,omitempty"`
}

// RenderLimits bounds the rendered old/new values in diff entries.
// Rendering is lossy by design: it exists for human reports and never
// feeds back into comparison logic.
type RenderLimits struct {
	// MaxStringLength truncates rendered string values
	MaxStringLength int
	// MaxObjectLength truncates rendered serialized containers
	MaxObjectLength int
}

// DefaultRenderLimits returns the default truncation thresholds
func DefaultRenderLimits() RenderLimits {
	return RenderLimits{
		MaxStringLength: 100,
		MaxObjectLength: 200,
	}
}
