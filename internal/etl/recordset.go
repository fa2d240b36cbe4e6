package etl

import (
	"fmt"
	"time"
)

// ── Recordset ──────────────────────────────────────────────
// Common intermediate data format.
// Executors emit Recordsets, strategies reshape them, writers persist them.

// Attribute names a semantic column independent of any one query's layout.
type Attribute int

const (
	AttrAssetCode Attribute = iota
	AttrAssetOrParStatus
	AttrLastChanged
	AttrAssetSublocationOrZone
	AttrDepartment
	AttrRfidTagID
	AttrSerialNumber
	AttrAssetName
	AttrAssetCategory
	AttrAssetType
	AttrAssetModel
	AttrCoreUID
	AttrCoreRFID
	AttrCoreModifiedDate
	AttrCoreCreatedDate
	AttrCoreWorkflowStatus
	AttrCoreSublocationOrZone
	AttrCoreLevel
	AttrParRule
	AttrParRuleStatus
	AttrParRuleQty
	AttrParRuleRepQty
	AttrAssetQuantity
	AttrLevel
	AttrZoneType
	AttrAssetModelDescription
	AttrWorkflowStatus

	attributeCount
)

var attributeNames = [attributeCount]string{
	"AssetCode", "AssetOrParStatus", "LastChanged", "AssetSublocationOrZone",
	"Department", "RfidTagID", "SerialNumber", "AssetName", "AssetCategory",
	"AssetType", "AssetModel", "CoreUID", "CoreRFID", "CoreModifiedDate",
	"CoreCreatedDate", "CoreWorkflowStatus", "CoreSublocationOrZone", "CoreLevel",
	"ParRule", "ParRuleStatus", "ParRuleQty", "ParRuleRepQty", "AssetQuantity",
	"Level", "ZoneType", "AssetModelDescription", "WorkflowStatus",
}

func (a Attribute) String() string {
	if a < 0 || a >= attributeCount {
		return fmt.Sprintf("Attribute(%d)", int(a))
	}
	return attributeNames[a]
}

// Unset marks an attribute the current query does not provide.
const Unset = -1

// AttributeIndex maps each Attribute to a column position, or Unset.
type AttributeIndex [attributeCount]int

// NewAttributeIndex returns an index with every attribute unset.
func NewAttributeIndex() AttributeIndex {
	var ix AttributeIndex
	for i := range ix {
		ix[i] = Unset
	}
	return ix
}

// Set points attribute a at column col.
func (ix *AttributeIndex) Set(a Attribute, col int) {
	ix[a] = col
}

// Get returns the column for a and whether it is set.
func (ix AttributeIndex) Get(a Attribute) (int, bool) {
	col := ix[a]
	return col, col != Unset
}

// Row is a single line of string fields, positionally aligned with Columns.
type Row struct {
	Fields []string `json:"fields"`
}

// Recordset is an ordered table of string fields plus the metadata the
// pipeline needs to name and stamp the output file.
type Recordset struct {
	Name          string         `json:"name"`
	Columns       []string       `json:"columns"`
	Rows          []Row          `json:"rows"`
	Index         AttributeIndex `json:"-"`
	LastModified  time.Time      `json:"lastModified"`
	Saved         bool           `json:"saved"`
	Supplementary *Recordset     `json:"supplementary,omitempty"`
}

// NewRecordset creates an empty recordset with an unset attribute index.
func NewRecordset(name string, columns []string) *Recordset {
	return &Recordset{
		Name:    name,
		Columns: columns,
		Index:   NewAttributeIndex(),
	}
}

// Len returns the number of rows.
func (r *Recordset) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Append adds a row. The field count must match the column count.
func (r *Recordset) Append(fields ...string) error {
	if len(fields) != len(r.Columns) {
		return fmt.Errorf("row has %d fields, recordset has %d columns", len(fields), len(r.Columns))
	}
	r.Rows = append(r.Rows, Row{Fields: fields})
	return nil
}

// Value returns the field of row mapped to attribute a, or "" when the
// attribute is unset or out of range.
func (r *Recordset) Value(row Row, a Attribute) string {
	col, ok := r.Index.Get(a)
	if !ok || col >= len(row.Fields) {
		return ""
	}
	return row.Fields[col]
}

// Touch raises LastModified to t if t is later.
func (r *Recordset) Touch(t time.Time) {
	if t.After(r.LastModified) {
		r.LastModified = t
	}
}

// Validate checks the structure: every row matches the column
// count and every set index points at an existing column.
func (r *Recordset) Validate() error {
	for a, col := range r.Index {
		if col != Unset && (col < 0 || col >= len(r.Columns)) {
			return fmt.Errorf("attribute %s points at column %d of %d", Attribute(a), col, len(r.Columns))
		}
	}
	for i, row := range r.Rows {
		if len(row.Fields) != len(r.Columns) {
			return fmt.Errorf("row %d has %d fields, expected %d", i, len(row.Fields), len(r.Columns))
		}
	}
	if r.Supplementary != nil {
		if err := r.Supplementary.Validate(); err != nil {
			return fmt.Errorf("supplementary: %w", err)
		}
	}
	return nil
}
