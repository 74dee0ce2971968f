package core

// Tag marks a resolved table as ordinary, ephemeral or subquery-derived.
type Tag int

// Table tags.
const (
	TagNormal Tag = iota
	TagEphemeral
	TagSubQuery
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagEphemeral:
		return "ephemeral"
	case TagSubQuery:
		return "subquery"
	default:
		return "normal"
	}
}

// Suffixes and sentinels embedded into resolved names.
const (
	EphemeralSuffix = "_TEMP_TBL"
	SubQuerySuffix  = "_SUBQRY_TBL"
	SubQueryDB      = "<SUBQUERY_DB>"
	EphemeralDB     = "<TEMP_DB>"
)

// ColumnRef is a resolved column endpoint.
type ColumnRef struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	Column   string `json:"column"`
	Tag      Tag    `json:"-"`
}

// QualifiedName returns database.table.column, omitting an empty database.
func (c ColumnRef) QualifiedName() string {
	if c.Database == "" {
		return c.Table + "." + c.Column
	}
	return c.Database + "." + c.Table + "." + c.Column
}

// TableName returns database.table, omitting an empty database.
func (c ColumnRef) TableName() string {
	if c.Database == "" {
		return c.Table
	}
	return c.Database + "." + c.Table
}

// IsReal reports whether the endpoint is a persisted table column.
func (c ColumnRef) IsReal() bool {
	return c.Tag == TagNormal
}

// JobInfo identifies the ETL job a script belongs to.
type JobInfo struct {
	System  string `json:"etl_system"`
	Job     string `json:"etl_job"`
	AppName string `json:"app_name"`
	Path    string `json:"sql_path"`
}

// LineageRecord is one resolved source to target column mapping.
type LineageRecord struct {
	ScriptID       string    `json:"script_id"`
	Job            JobInfo   `json:"job"`
	StatementIndex int       `json:"sql_no"`
	Source         ColumnRef `json:"source"`
	Target         ColumnRef `json:"target"`
}
