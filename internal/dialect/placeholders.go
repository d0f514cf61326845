package dialect

// Semantic placeholders, filled by the payload builder.
const (
	Database     = "${DATABASE}"
	DatabaseHex  = "${DATABASE.HEX}"
	Table        = "${TABLE}"
	TableHex     = "${TABLE.HEX}"
	Field        = "${FIELD}"
	Fields       = "${FIELDS}"
	FilePath     = "${FILEPATH}"
	FilePathHex  = "${FILEPATH.HEX}"
	ContentHex   = "${CONTENT.HEX}"
	Injection    = "${INJECTION}"
	Index        = "${INDEX}"
	Bit          = "${BIT}"
	Capacity     = "${CAPACITY}"
	SleepTime    = "${SLEEP_TIME}"
	Window       = "${WINDOW}"
	Test         = "${TEST}"
	Indice       = "${INDICE}"
	Indices      = "${INDICES}"
	IndiceUnique = "${INDICE_UNIQUE}"
	ResultRange  = "${RESULT_RANGE}"
	Calibrator   = "${CALIBRATOR}"
	Limit        = "${LIMIT}"
)

// Syntax atom names. Templates reference them as ${NAME}.
const (
	EncloseValueSQL  = "ENCLOSE_VALUE_SQL"
	EncloseValueHex  = "ENCLOSE_VALUE_HEX"
	SeparatorQteSQL  = "SEPARATOR_QTE_SQL"
	SeparatorQteHex  = "SEPARATOR_QTE_HEX"
	SeparatorCellSQL = "SEPARATOR_CELL_SQL"
	SeparatorCellHex = "SEPARATOR_CELL_HEX"
	SeparatorRowSQL  = "SEPARATOR_ROW_SQL"
	SeparatorRowHex  = "SEPARATOR_ROW_HEX"
	CalibratorSQL    = "CALIBRATOR_SQL"
	CalibratorHex    = "CALIBRATOR_HEX"
	Lead             = "LEAD"
	LeadHex          = "LEAD_HEX"
	TrailSQL         = "TRAIL_SQL"
	TrailHex         = "TRAIL_HEX"
	NullSQL          = "NULL_SQL"
	NullHex          = "NULL_HEX"
)

// DefaultAtoms are the atoms every dialect starts from.
var DefaultAtoms = map[string]string{
	EncloseValueSQL:  "\x04",
	EncloseValueHex:  "04",
	SeparatorQteSQL:  "\x05",
	SeparatorQteHex:  "05",
	SeparatorCellSQL: "\x7f",
	SeparatorCellHex: "7f",
	SeparatorRowSQL:  "\x06",
	SeparatorRowHex:  "06",
	CalibratorSQL:    "#",
	CalibratorHex:    "23",
	Lead:             "SqLi",
	LeadHex:          "53714c69",
	TrailSQL:         "\x01\x03\x03\x07",
	TrailHex:         "01030307",
	NullSQL:          "\x00",
	NullHex:          "00",
}

// AtomToken returns the template token of an atom name.
func AtomToken(name string) string {
	return "${" + name + "}"
}

// templateSlot names one template of a descriptor and the semantic
// placeholders it may reference.
type templateSlot struct {
	path    string
	value   string
	allowed []string
}

// slots lists every template of d with its allowed placeholders.
func (d *Descriptor) slots() []templateSlot {
	s := []templateSlot{
		{"schema.info", d.Schema.Info, nil},
		{"schema.databases", d.Schema.Databases, []string{Limit}},
		{"schema.tables", d.Schema.Tables, []string{Database, DatabaseHex, Limit}},
		{"schema.columns", d.Schema.Columns, []string{Database, DatabaseHex, Table, TableHex, Limit}},
		{"schema.row.query", d.Schema.Row.Query, []string{Fields, Database, DatabaseHex, Table, TableHex, Limit}},
		{"schema.row.field", d.Schema.Row.Field, []string{Field}},
		{"schema.row.concat", d.Schema.Row.Concat, nil},
		{"file.privilege", d.File.Privilege, nil},
		{"file.read", d.File.Read, []string{FilePath, FilePathHex}},
		{"file.create.content", d.File.Create.Content, []string{ContentHex}},
		{"file.create.query", d.File.Create.Query, []string{FilePath, FilePathHex}},
		{"strategy.configuration.slidingWindow", d.Strategy.Configuration.SlidingWindow, []string{Injection, Index, Capacity}},
		{"strategy.configuration.failsafe", d.Strategy.Configuration.Failsafe, []string{Indice}},
		{"strategy.configuration.calibrator", d.Strategy.Configuration.Calibrator, nil},
		{"strategy.configuration.limit", d.Strategy.Configuration.Limit, []string{Limit}},
	}
	if n := d.Strategy.Normal; n != nil {
		s = append(s,
			templateSlot{"strategy.normal.indices", n.Indices, []string{Indices, IndiceUnique, ResultRange}},
			templateSlot{"strategy.normal.capacity", n.Capacity, []string{Calibrator, Indice}},
			templateSlot{"strategy.normal.orderBy", n.OrderBy, nil},
		)
	}
	for _, m := range d.Strategy.Error {
		s = append(s, templateSlot{"strategy.error." + m.Name, m.Query, []string{Window, Injection, Index, Capacity}})
	}
	if b := d.Strategy.Boolean; b != nil {
		for _, t := range b.Test.True {
			s = append(s, templateSlot{"strategy.boolean.test.true", t, nil})
		}
		for _, t := range b.Test.False {
			s = append(s, templateSlot{"strategy.boolean.test.false", t, nil})
		}
		s = append(s,
			templateSlot{"strategy.boolean.test.initialization", b.Test.Initialization, nil},
			templateSlot{"strategy.boolean.test.bit", b.Test.Bit, []string{Injection, Index, Bit}},
			templateSlot{"strategy.boolean.test.length", b.Test.Length, []string{Injection, Index}},
			templateSlot{"strategy.boolean.blind", b.Blind, []string{Test}},
			templateSlot{"strategy.boolean.time", b.Time, []string{Test, SleepTime}},
		)
	}
	return s
}
