package types

// Vector is one embedding record as written to the vector store. The ID
// is the book's ISBN-13 in decimal form and Values hold the description
// embedding. float32 keeps upsert payloads at half the float64 size.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]interface{}
}

// NewVector creates a Vector with an empty metadata map.
func NewVector(id string, values []float32) *Vector {
	return &Vector{
		ID:       id,
		Values:   values,
		Metadata: make(map[string]interface{}),
	}
}

// NewVectorWithMetadata creates a Vector carrying book metadata.
func NewVectorWithMetadata(id string, values []float32, metadata map[string]interface{}) *Vector {
	return &Vector{
		ID:       id,
		Values:   values,
		Metadata: metadata,
	}
}

// Clone returns a deep copy; the values slice and metadata map are not
// shared with the original.
func (v *Vector) Clone() *Vector {
	values := make([]float32, len(v.Values))
	copy(values, v.Values)

	metadata := make(map[string]interface{}, len(v.Metadata))
	for k, val := range v.Metadata {
		metadata[k] = val
	}

	return &Vector{
		ID:       v.ID,
		Values:   values,
		Metadata: metadata,
	}
}
