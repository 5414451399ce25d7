package masking

// Masker is a code-based masker with structural awareness of the data it
// processes, as opposed to a plain regex replacement. Implementations must be
// safe for concurrent use; the service shares one instance across requests.
type Masker interface {
	// Name returns the identifier used to reference this masker from
	// pattern groups and server masking configs. Must match a key in
	// config.GetBuiltinConfig().CodeMaskers.
	Name() string

	// AppliesTo reports whether the masker should process the given data.
	// Called on every tool result, so implementations keep this cheap.
	AppliesTo(data string) bool

	// Mask returns data with sensitive values replaced. Implementations
	// return the input unchanged when nothing needs masking or the data
	// cannot be parsed.
	Mask(data string) string
}
