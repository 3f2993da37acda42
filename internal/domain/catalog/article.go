package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductModel is the ERP model the weighed-article catalog is read from.
const ProductModel = "product.product"

// UnknownCategory is reported when the category value has no path separator.
const UnknownCategory = "?"

// Article is the normalized projection of an ERP product as the scales consume it.
// Wire names are fixed by the scale firmware.
type Article struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"nom,omitempty"`
	Barcode  string `json:"code-barre,omitempty"`
	Price    string `json:"prix,omitempty"`
	Category string `json:"categorie"`
	Unit     string `json:"unite"`
	Image    string `json:"image,omitempty"`
}

// FieldMapping maps ERP field names to article wire names, in projection order.
var FieldMapping = []struct {
	Field string
	Wire  string
}{
	{"id", "id"},
	{"name", "nom"},
	{"barcode", "code-barre"},
	{"list_price", "prix"},
	{"categ_id", "categorie"},
	{"uom_id", "unite"},
	{"image", "image"},
}

// Fields returns the ERP field projection requested on reload.
func Fields() []string {
	fields := make([]string, len(FieldMapping))
	for i, m := range FieldMapping {
		fields[i] = m.Field
	}
	return fields
}

// WeighedDomain returns the ERP filter selecting sellable, POS-enabled,
// weigh-by-code products in the in-store barcode range.
func WeighedDomain() []any {
	return []any{
		[]any{"barcode", ">", "2000000000000"},
		[]any{"barcode", "<", "2999000000000"},
		[]any{"sale_ok", "=", true},
		[]any{"available_in_pos", "=", true},
		[]any{"to_weight", "=", true},
	}
}

// ArticleFromRecord maps one raw ERP record. Falsy values leave the field empty.
func ArticleFromRecord(record map[string]any) Article {
	var a Article
	for _, m := range FieldMapping {
		v, ok := Stringify(record[m.Field])
		if !ok {
			continue
		}
		switch m.Wire {
		case "id":
			a.ID = v
		case "nom":
			a.Name = v
		case "code-barre":
			a.Barcode = v
		case "prix":
			a.Price = v
		case "categorie":
			a.Category = v
		case "unite":
			a.Unit = v
		case "image":
			a.Image = v
		}
	}
	a.Unit = UnitCode(a.Unit)
	a.Category = CategoryLeaf(a.Category)
	return a
}

// Stringify renders a decoded JSON value the way the scales expect it.
// Many2one pairs become "id,label". The boolean result is false for
// null, false, zero and the empty string, which are left out of the article.
func Stringify(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case bool:
		if !val {
			return "", false
		}
		return "true", true
	case string:
		return val, val != ""
	case float64:
		if val == 0 {
			return "", false
		}
		return decimal.NewFromFloat(val).String(), true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val.String(), true
		}
		return Stringify(f)
	case int:
		return Stringify(float64(val))
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = elementString(item)
		}
		return strings.Join(parts, ","), true
	default:
		return fmt.Sprint(val), true
	}
}

// elementString renders a list element. Unlike top-level values, falsy
// elements keep their literal form and null becomes empty.
func elementString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return decimal.NewFromFloat(val).String()
	}
	s, _ := Stringify(v)
	return s
}

// CategoryLeaf returns the last segment of a slash-delimited category path,
// trimmed, or UnknownCategory when there is no separator.
func CategoryLeaf(category string) string {
	i := strings.LastIndex(category, "/")
	if i == -1 {
		return UnknownCategory
	}
	return strings.TrimSpace(category[i+1:])
}

// UnitCode returns the text after the first comma of an "id,label" value,
// or the value itself when there is no comma.
func UnitCode(unit string) string {
	i := strings.Index(unit, ",")
	if i == -1 {
		return unit
	}
	return unit[i+1:]
}

// SortByName orders articles by name, byte-wise ascending. Equal names keep
// their relative order.
func SortByName(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].Name < articles[j].Name
	})
}

// CanonicalJSON serializes articles without HTML escaping and without a
// trailing newline.
func CanonicalJSON(articles []Article) ([]byte, error) {
	if articles == nil {
		articles = []Article{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(articles); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Digest returns the standard base64 SHA-256 of a canonical serialization.
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Entry is one loaded catalog for an environment. It is built whole and never
// mutated, so Items and Digest always agree.
type Entry struct {
	LoadedAt time.Time
	Items    []Article
	Digest   string
	// Payload is the canonical serialization Digest was computed over.
	Payload []byte
}

// NewEntry maps, sorts and digests records into an Entry stamped at loadedAt.
func NewEntry(records []map[string]any, loadedAt time.Time) (*Entry, error) {
	items := make([]Article, 0, len(records))
	for _, r := range records {
		items = append(items, ArticleFromRecord(r))
	}
	SortByName(items)

	payload, err := CanonicalJSON(items)
	if err != nil {
		return nil, fmt.Errorf("serialize articles: %w", err)
	}
	return &Entry{
		LoadedAt: loadedAt.UTC(),
		Items:    items,
		Digest:   Digest(payload),
		Payload:  payload,
	}, nil
}

// ChangeEvent announces that an environment's catalog digest changed.
type ChangeEvent struct {
	Env      string    `json:"env"`
	Digest   string    `json:"sha"`
	Previous string    `json:"previous_sha,omitempty"`
	LoadedAt time.Time `json:"dh"`
	Articles int       `json:"articles"`
}
