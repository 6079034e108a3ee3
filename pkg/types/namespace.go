package types

import (
	"fmt"
	"strconv"
	"strings"
)

// VectorSchemaVersion is bumped whenever the chunking or metadata layout
// changes in a way that makes stored vectors incomparable.
const VectorSchemaVersion = 2

// Namespace partitions vectors produced by incomparable embedding spaces.
// Its string form is {provider}:{model}:v{schema}:{dimension}.
type Namespace struct {
	Provider      string
	Model         string
	SchemaVersion int
	Dimension     int
}

// NewNamespace returns a namespace at the current schema version.
func NewNamespace(provider, model string, dimension int) Namespace {
	return Namespace{
		Provider:      provider,
		Model:         model,
		SchemaVersion: VectorSchemaVersion,
		Dimension:     dimension,
	}
}

func (n Namespace) String() string {
	return fmt.Sprintf("%s:%s:v%d:%d", n.Provider, n.Model, n.SchemaVersion, n.Dimension)
}

// Prefix matches every schema version and dimension of this provider/model.
func (n Namespace) Prefix() string {
	return n.Provider + ":" + n.Model + ":"
}

// IsZero reports whether the namespace has not been resolved yet.
func (n Namespace) IsZero() bool {
	return n.Provider == "" && n.Model == "" && n.Dimension == 0
}

// SameModel reports whether both namespaces come from the same provider,
// model and dimension, ignoring the schema version.
func (n Namespace) SameModel(other Namespace) bool {
	return n.Provider == other.Provider && n.Model == other.Model && n.Dimension == other.Dimension
}

// ParseNamespace parses the string form produced by Namespace.String.
// Model ids may themselves contain colons.
func ParseNamespace(s string) (Namespace, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return Namespace{}, fmt.Errorf("%w: %q", ErrInvalidNamespace, s)
	}

	dim, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || dim < 0 {
		return Namespace{}, fmt.Errorf("%w: bad dimension in %q", ErrInvalidNamespace, s)
	}

	schema := parts[len(parts)-2]
	if !strings.HasPrefix(schema, "v") {
		return Namespace{}, fmt.Errorf("%w: bad schema version in %q", ErrInvalidNamespace, s)
	}
	version, err := strconv.Atoi(schema[1:])
	if err != nil {
		return Namespace{}, fmt.Errorf("%w: bad schema version in %q", ErrInvalidNamespace, s)
	}

	provider := parts[0]
	model := strings.Join(parts[1:len(parts)-2], ":")
	if provider == "" || model == "" {
		return Namespace{}, fmt.Errorf("%w: %q", ErrInvalidNamespace, s)
	}

	return Namespace{Provider: provider, Model: model, SchemaVersion: version, Dimension: dim}, nil
}

// VectorID builds the deterministic key namespace::path#chunkIndex.
func VectorID(namespace, path string, chunkIndex int) string {
	return namespace + "::" + path + "#" + strconv.Itoa(chunkIndex)
}

// ParseVectorID splits a key built by VectorID.
func ParseVectorID(id string) (namespace, path string, chunkIndex int, err error) {
	sep := strings.Index(id, "::")
	hash := strings.LastIndex(id, "#")
	if sep <= 0 || hash < sep+2 {
		return "", "", 0, fmt.Errorf("%w: %q", ErrInvalidVectorID, id)
	}
	chunkIndex, err = strconv.Atoi(id[hash+1:])
	if err != nil || chunkIndex < 0 {
		return "", "", 0, fmt.Errorf("%w: %q", ErrInvalidVectorID, id)
	}
	return id[:sep], id[sep+2 : hash], chunkIndex, nil
}
