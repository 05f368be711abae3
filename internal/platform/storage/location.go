package storage

import (
	"fmt"
	"strings"
)

// Scheme prefixes Cloud Storage object locations.
const Scheme = "gs://"

// ObjectLocation identifies a Cloud Storage object.
type ObjectLocation struct {
	Bucket string
	Object string
}

// String renders the location as gs://bucket/object.
func (l ObjectLocation) String() string {
	return Scheme + l.Bucket + "/" + l.Object
}

// IsObjectURL reports whether raw uses the gs:// scheme.
func IsObjectURL(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), Scheme)
}

// ParseObjectURL splits gs://bucket/path/to/object into its bucket and object name.
func ParseObjectURL(raw string) (ObjectLocation, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, Scheme) {
		return ObjectLocation{}, fmt.Errorf("storage: %q is not a %s url", raw, Scheme)
	}
	bucket, object, _ := strings.Cut(strings.TrimPrefix(raw, Scheme), "/")
	bucket, err := validateSegment("bucket", bucket)
	if err != nil {
		return ObjectLocation{}, err
	}
	object, err = validateObject(object)
	if err != nil {
		return ObjectLocation{}, err
	}
	return ObjectLocation{Bucket: bucket, Object: object}, nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateObject(value string) (string, error) {
	value = strings.Trim(strings.TrimSpace(value), "/")
	if value == "" {
		return "", fmt.Errorf("storage: object is required")
	}
	for _, segment := range strings.Split(value, "/") {
		if segment == ".." || segment == "" {
			return "", fmt.Errorf("storage: object contains invalid traversal sequence")
		}
	}
	return value, nil
}
