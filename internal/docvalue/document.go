package docvalue

import (
	"fmt"
	"strings"
)

const documentsMarker = "/documents/"

// Document is a raw document as returned by runQuery and batchGet.
type Document struct {
	Name       string           `json:"name"`
	Fields     map[string]Value `json:"fields,omitempty"`
	CreateTime string           `json:"createTime,omitempty"`
	UpdateTime string           `json:"updateTime,omitempty"`
}

// Name is a parsed document path.
type Name struct {
	// Root is the database documents root, e.g. projects/p/databases/(default)/documents.
	// Empty when the parsed name was already relative.
	Root string
	// Path is the document path relative to Root, e.g. users/u1/runs/r1.
	Path string
	// Parent is the relative path of the owning document, empty for top-level documents.
	Parent     string
	Collection string
	ID         string
}

// DocumentsRoot returns the fully-qualified documents root for a database.
func DocumentsRoot(projectID, databaseID string) string {
	if databaseID == "" {
		databaseID = "(default)"
	}
	return fmt.Sprintf("projects/%s/databases/%s/documents", projectID, databaseID)
}

// ParseName splits a document name into its components. Both fully-qualified
// names and paths relative to the documents root are accepted.
func ParseName(name string) (Name, error) {
	var out Name
	rel := name
	if idx := strings.Index(name, documentsMarker); idx >= 0 {
		out.Root = name[:idx+len(documentsMarker)-1]
		rel = name[idx+len(documentsMarker):]
	}
	rel = strings.Trim(rel, "/")
	segments := strings.Split(rel, "/")
	if rel == "" || len(segments)%2 != 0 {
		return Name{}, fmt.Errorf("invalid document name %q", name)
	}
	for _, seg := range segments {
		if seg == "" {
			return Name{}, fmt.Errorf("invalid document name %q", name)
		}
	}

	out.Path = rel
	out.Collection = segments[len(segments)-2]
	out.ID = segments[len(segments)-1]
	if len(segments) > 2 {
		out.Parent = strings.Join(segments[:len(segments)-2], "/")
	}
	return out, nil
}

// ParentID returns the id of the owning document, or "" for top-level documents.
func (n Name) ParentID() string {
	if n.Parent == "" {
		return ""
	}
	return n.Parent[strings.LastIndex(n.Parent, "/")+1:]
}

// FullPath joins the relative path onto the given root.
func FullPath(root, rel string) string {
	return strings.TrimSuffix(root, "/") + "/" + strings.TrimPrefix(rel, "/")
}

// DecodeDocument converts a raw document to a Record. Path metadata is
// dropped and the trailing path segment is stored under "id". When
// includeParentID is set, the id of the owning document (three segments up)
// is stored under "parentDoc".
func DecodeDocument(doc Document, includeParentID bool) Record {
	rec := Record(DecodeFields(doc.Fields))
	name, err := ParseName(doc.Name)
	if err != nil {
		return rec
	}
	rec[FieldID] = name.ID
	if includeParentID {
		if parent := name.ParentID(); parent != "" {
			rec[FieldParentDoc] = parent
		}
	}
	return rec
}

// DecodeDocuments decodes a slice of documents in order.
func DecodeDocuments(docs []Document, includeParentID bool) []Record {
	out := make([]Record, len(docs))
	for i, doc := range docs {
		out[i] = DecodeDocument(doc, includeParentID)
	}
	return out
}
