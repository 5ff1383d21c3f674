package state

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldKind enumerates the built-in column types.
type FieldKind int

const (
	Integer FieldKind = iota
	BigInteger
	SmallInteger
	Float
	Decimal
	Text
	VarChar
	Boolean
	Date
	DateTime
	JSON
	UUID
	Binary
	Custom
)

var fieldKindNames = []string{
	"integer", "biginteger", "smallinteger", "float", "decimal",
	"text", "varchar", "boolean", "date", "datetime",
	"json", "uuid", "binary", "custom",
}

func (k FieldKind) String() string {
	if int(k) < len(fieldKindNames) {
		return fieldKindNames[k]
	}
	return fmt.Sprintf("<unknown field kind %d>", int(k))
}

// FieldType is a column type plus its type-level arguments. VarChar carries an
// explicit length, Decimal carries precision and scale, Custom carries the raw
// backend type name.
type FieldType struct {
	Kind      FieldKind
	MaxLength int
	Precision int
	Scale     int
	Name      string
}

// VarCharType returns a VARCHAR type with the given length.
func VarCharType(length int) FieldType {
	return FieldType{Kind: VarChar, MaxLength: length}
}

// DecimalType returns a DECIMAL type with the given precision and scale.
func DecimalType(precision, scale int) FieldType {
	return FieldType{Kind: Decimal, Precision: precision, Scale: scale}
}

// CustomType returns a type that passes the raw name through to the backend.
func CustomType(name string) FieldType {
	return FieldType{Kind: Custom, Name: name}
}

// SimpleType returns a type with no arguments.
func SimpleType(kind FieldKind) FieldType {
	return FieldType{Kind: kind}
}

// Equal reports whether two types are identical, including arguments.
func (t FieldType) Equal(o FieldType) bool {
	return t.Kind == o.Kind &&
		t.MaxLength == o.MaxLength &&
		t.Precision == o.Precision &&
		t.Scale == o.Scale &&
		t.Name == o.Name
}

// typeFamily groups kinds whose values are plausibly interchangeable. Rename
// detection dampens the similarity score when two fields live in different
// families instead of rejecting the pair outright.
func (t FieldType) typeFamily() int {
	switch t.Kind {
	case Integer, BigInteger, SmallInteger, Float, Decimal:
		return 0 // numeric
	case Text, VarChar, UUID:
		return 1 // textual
	case Date, DateTime:
		return 2 // temporal
	case Boolean:
		return 3
	case JSON:
		return 4
	case Binary:
		return 5
	default:
		return 6
	}
}

// CompatibleWith reports whether a value of this type could survive a rename
// to the other type without an obviously lossy conversion.
func (t FieldType) CompatibleWith(o FieldType) bool {
	if t.Kind == Custom || o.Kind == Custom {
		return t.Kind == o.Kind && t.Name == o.Name
	}
	return t.typeFamily() == o.typeFamily()
}

func (t FieldType) String() string {
	switch t.Kind {
	case VarChar:
		return fmt.Sprintf("varchar(%d)", t.MaxLength)
	case Decimal:
		return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
	case Custom:
		return "custom:" + t.Name
	default:
		return t.Kind.String()
	}
}

// ParseFieldType parses the String form back into a FieldType. Used by the
// filesystem repository when loading recorded migrations.
func ParseFieldType(s string) (FieldType, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "custom:"); ok {
		if rest == "" {
			return FieldType{}, fmt.Errorf("custom type requires a name")
		}
		return CustomType(rest), nil
	}
	if strings.HasPrefix(s, "varchar(") && strings.HasSuffix(s, ")") {
		n, err := strconv.Atoi(s[len("varchar(") : len(s)-1])
		if err != nil || n <= 0 {
			return FieldType{}, fmt.Errorf("invalid varchar length in %q", s)
		}
		return VarCharType(n), nil
	}
	if strings.HasPrefix(s, "decimal(") && strings.HasSuffix(s, ")") {
		parts := strings.SplitN(s[len("decimal("):len(s)-1], ",", 2)
		if len(parts) != 2 {
			return FieldType{}, fmt.Errorf("invalid decimal arguments in %q", s)
		}
		precision, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		scale, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			return FieldType{}, fmt.Errorf("invalid decimal arguments in %q", s)
		}
		return DecimalType(precision, scale), nil
	}
	for kind, name := range fieldKindNames {
		if s == name && FieldKind(kind) != VarChar && FieldKind(kind) != Decimal && FieldKind(kind) != Custom {
			return SimpleType(FieldKind(kind)), nil
		}
	}
	return FieldType{}, fmt.Errorf("unknown field type %q", s)
}

// RelationKind enumerates relationship field flavors.
type RelationKind int

const (
	ForeignKey RelationKind = iota
	OneToOne
	ManyToMany
)

func (k RelationKind) String() string {
	return []string{"foreign_key", "one_to_one", "many_to_many"}[k]
}

// ForeignKeyAction is the referential action applied on delete or update of
// the referenced row.
type ForeignKeyAction int

const (
	NoAction ForeignKeyAction = iota
	Cascade
	SetNull
	SetDefault
	Restrict
)

func (a ForeignKeyAction) String() string {
	return []string{"NO ACTION", "CASCADE", "SET NULL", "SET DEFAULT", "RESTRICT"}[a]
}

// Relation describes the relationship metadata carried by FK, O2O and M2M
// fields. Targets may be self-referential.
type Relation struct {
	Kind        RelationKind
	TargetApp   string
	TargetModel string
	OnDelete    ForeignKeyAction
	OnUpdate    ForeignKeyAction
}

// Target returns the referenced model key.
func (r *Relation) Target() ModelKey {
	return ModelKey{App: r.TargetApp, Name: r.TargetModel}
}

// Equal reports whether two relations are identical.
func (r *Relation) Equal(o *Relation) bool {
	if r == nil || o == nil {
		return r == o
	}
	return *r == *o
}

// FieldState is one declared column. Name is unique within the owning model;
// Relation is nil for plain columns.
type FieldState struct {
	Name     string
	Type     FieldType
	Nullable bool
	Params   *Params
	Relation *Relation
}

// NewField creates a field with an empty parameter map.
func NewField(name string, t FieldType, nullable bool) *FieldState {
	return &FieldState{Name: name, Type: t, Nullable: nullable, Params: NewParams()}
}

// PrimaryKey reports whether the field carries the primary_key parameter flag.
func (f *FieldState) PrimaryKey() bool {
	return f.Params != nil && f.Params.BoolFlag(ParamPrimaryKey)
}

// Clone deep-copies the field.
func (f *FieldState) Clone() *FieldState {
	out := &FieldState{Name: f.Name, Type: f.Type, Nullable: f.Nullable}
	if f.Params != nil {
		out.Params = f.Params.Clone()
	} else {
		out.Params = NewParams()
	}
	if f.Relation != nil {
		rel := *f.Relation
		out.Relation = &rel
	}
	return out
}

// Equal performs a full structural comparison.
func (f *FieldState) Equal(o *FieldState) bool {
	if f.Name != o.Name || !f.Type.Equal(o.Type) || f.Nullable != o.Nullable {
		return false
	}
	if !f.Relation.Equal(o.Relation) {
		return false
	}
	fp, op := f.Params, o.Params
	if fp == nil {
		fp = NewParams()
	}
	if op == nil {
		op = NewParams()
	}
	return fp.Equal(op)
}

// Well-known parameter keys.
const (
	ParamPrimaryKey = "primary_key"
	ParamUnique     = "unique"
	ParamDBIndex    = "db_index"
	ParamDefault    = "default"
	ParamAutoNow    = "auto_now"
	ParamAutoNowAdd = "auto_now_add"
)
