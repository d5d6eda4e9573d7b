package generic

// Void is the zero-size value used where a type parameter needs "nothing", e.g. set membership or a Result with no
// meaningful value.
type Void struct{}

func NewVoid() Void {
	return Void{}
}
