package jobs

import (
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/rfid"
)

// ── Provisioning ───────────────────────────────────────────
// New, retagged and reprovisioned assets, staged as the workbook CORE
// imports and the tag printer template binds to.

const ProvisioningJob = "provisioning"

// The CORE import layout. Only the first twelve columns and Description are
// filled; CORE rejects the file if the rest are missing.
var provisioningHeaders = []string{
	"LocationName", "ZoneName", "IsHuman", "OwnershipName", "RFIDTagID",
	"SerialNumber", "UID", "AssetCategoryName", "AssetTypeName", "AssetModelName", "IsDynamic", "AssetName", "Barcode", "AssetComment",
	"Description", "PurchasePrice", "PurchaseDate", "ExpiryDate", "MarketValue", "CostPerDay", "RevenuePerDay", "IsSold", "IsLeased",
	"LeasedDate", "LeaseOwnershipName", "LeasedStartDate", "LeasedEndDate", "Comments", "Role", "FirstName", "LastName",
	"ContactNumber", "Gender", "Address1", "Address2", "City", "State", "Country", "PostCode", "Email", "BirthDate", "StaffID", "VisitorID",
}

var provisioningLabelHeaders = []string{
	"__TagLocation", "__AssetCategoryTagLabel", "__ContactTagLabel", "__IDTagLabel", "__COREImportMethod",
}

// Import methods written to __COREImportMethod.
const (
	ImportNew         = "New"
	ImportRetag       = "Modify (Retag)"
	ImportReprovision = "Modify (Reprovision)"
)

// Agility categories with tag templates.
const (
	CategoryMTMU = "MTMU"
	CategoryFM   = "Facilities Management"
)

const (
	defaultLocation = "LB"
	defaultZone     = "LBS02 [ICT Storeroom]"
	defaultIsHuman  = "No"
	defaultDynamic  = "Yes"

	rfidDescriptionLabel = "RFID Tag ID: "
	serialSeparator      = "-"
	assetNameTypeChars   = 8
)

// categoryProfile is what a category contributes to the CORE row and the
// printed tag.
type categoryProfile struct {
	coreCategory   string
	defaultDept    string
	categoryLabel  string
	contactLabel   string
	idLabel        string
	tagLocationSrc etl.Attribute
}

var categoryProfiles = map[string]categoryProfile{
	CategoryMTMU: {
		coreCategory:   "MTMU Equipment",
		defaultDept:    "MTMU",
		categoryLabel:  "Medical Technology Management Unit",
		contactLabel:   "For equipment service call  6456 3242",
		idLabel:        "Tag No.",
		tagLocationSrc: etl.AttrDepartment,
	},
	CategoryFM: {
		coreCategory:   "FM Equipment",
		defaultDept:    "Facilities Management",
		categoryLabel:  "Facilities Management",
		contactLabel:   "For equipment service support contact",
		idLabel:        "Asset Number",
		tagLocationSrc: etl.AttrAssetSublocationOrZone,
	},
}

func init() {
	etl.RegisterStrategy(ProvisioningJob, NewProvisioning)
}

type Provisioning struct {
	tmpl     *template.Template
	settings etl.JobSettings
	bits     int
}

// NewProvisioning builds the provisioning strategy.
func NewProvisioning(s etl.JobSettings) (etl.Strategy, error) {
	if err := checkDatabases(s, true); err != nil {
		return nil, err
	}
	tmpl, err := loadQuery(ProvisioningJob, s.QueriesDir)
	if err != nil {
		return nil, err
	}
	bits := s.RFIDBits
	if bits <= 0 {
		bits = rfid.DefaultBits
	}
	return &Provisioning{tmpl: tmpl, settings: s, bits: bits}, nil
}

func (p *Provisioning) Spec() etl.StrategySpec {
	return etl.StrategySpec{
		Name:      ProvisioningJob,
		Label:     "Asset Provisioning Data",
		Prefix:    "AssetProvisioningDataFile",
		Format:    etl.FormatXLSX,
		Retain:    8,
		Overwrite: false,
		SheetName: "Worksheet1",
	}
}

func (p *Provisioning) BuildQuery(cutoff time.Time) (etl.Query, error) {
	text, err := renderQuery(p.tmpl, queryData{
		AssetDB: p.settings.AssetDB,
		LSDB:    p.settings.LSDB,
		Cutoff:  sqlTime(cutoff, p.settings.Location),
	})
	if err != nil {
		return etl.Query{}, err
	}

	ix := etl.NewAttributeIndex()
	for col, a := range []etl.Attribute{
		etl.AttrAssetCode, etl.AttrLastChanged, etl.AttrAssetCategory, etl.AttrAssetType,
		etl.AttrAssetModel, etl.AttrAssetName, etl.AttrRfidTagID, etl.AttrDepartment,
		etl.AttrSerialNumber, etl.AttrAssetSublocationOrZone, etl.AttrCoreUID, etl.AttrCoreRFID,
		etl.AttrCoreModifiedDate, etl.AttrCoreCreatedDate, etl.AttrCoreLevel, etl.AttrCoreSublocationOrZone,
	} {
		ix.Set(a, col)
	}
	return etl.Query{Text: text, Index: ix}, nil
}

// ImportMethod classifies an asset by what CORE already knows about it.
func ImportMethod(coreUID, coreRFID string) string {
	switch {
	case coreUID != "" && coreRFID == "":
		return ImportRetag
	case coreUID != "" && coreRFID != "":
		return ImportReprovision
	default:
		return ImportNew
	}
}

// DefaultAssetName names an asset agility left unnamed, e.g. "Infusion MTM42946".
func DefaultAssetName(assetType, uid string) string {
	r := []rune(assetType)
	if len(r) > assetNameTypeChars {
		r = r[:assetNameTypeChars]
	}
	return string(r) + " " + uid
}

func (p *Provisioning) MapColumns(src *etl.Recordset) (*etl.Recordset, []etl.RowError) {
	spec := p.Spec()
	out := etl.NewRecordset(spec.SheetName, etl.Concat(
		provisioningHeaders,
		provisioningLabelHeaders,
		etl.RawColumns(src),
	))
	out.LastModified = src.LastModified
	loc := p.settings.Location

	var rowErrs []etl.RowError
	for i, row := range src.Rows {
		uid := src.Trimmed(row, etl.AttrAssetCode)
		category := src.Trimmed(row, etl.AttrAssetCategory)
		assetType := src.Trimmed(row, etl.AttrAssetType)
		model := src.Trimmed(row, etl.AttrAssetModel)

		if category == "" || assetType == "" || model == "" {
			rowErrs = append(rowErrs, etl.RowError{Row: i, Key: uid, Err: errors.New("category, type, or model is missing")})
			continue
		}

		method := ImportMethod(src.Trimmed(row, etl.AttrCoreUID), src.Trimmed(row, etl.AttrCoreRFID))
		stampAttr := etl.AttrLastChanged
		switch method {
		case ImportRetag:
			stampAttr = etl.AttrCoreModifiedDate
		case ImportReprovision:
			stampAttr = etl.AttrCoreCreatedDate
		}
		changed, err := etl.ParseSQLTime(src.Value(row, stampAttr), loc)
		if err != nil {
			rowErrs = append(rowErrs, etl.RowError{Row: i, Key: uid, Err: errors.Wrap(err, stampAttr.String())})
			continue
		}

		level, zone := defaultLocation, defaultZone
		if method == ImportReprovision {
			level = src.Trimmed(row, etl.AttrCoreLevel)
			zone = src.Trimmed(row, etl.AttrCoreSublocationOrZone)
		}

		profile, known := categoryProfiles[category]
		department := src.Trimmed(row, etl.AttrDepartment)
		if department == "" {
			department = profile.defaultDept
		}

		serial := uid
		if s := src.Trimmed(row, etl.AttrSerialNumber); s != "" {
			serial += serialSeparator + s
		}

		name := src.Trimmed(row, etl.AttrAssetName)
		if name == "" {
			name = DefaultAssetName(assetType, uid)
		}

		tagID := rfid.Encode(uid, p.settings.RFIDPrefix, p.bits)

		fields := make([]string, len(provisioningHeaders), len(out.Columns))
		copy(fields, []string{
			level, zone, defaultIsHuman, department, tagID,
			serial, uid, profile.coreCategory, assetType, model, defaultDynamic, name,
			"", "", rfidDescriptionLabel + tagID,
		})

		var tagLocation string
		if known {
			tagLocation = src.Value(row, profile.tagLocationSrc)
		}
		fields = append(fields, tagLocation, profile.categoryLabel, profile.contactLabel, profile.idLabel, method)
		fields = append(fields, row.Fields...)

		if err := out.Append(fields...); err != nil {
			rowErrs = append(rowErrs, etl.RowError{Row: i, Key: uid, Err: err})
			continue
		}
		out.Touch(changed)
	}
	return out, rowErrs
}
