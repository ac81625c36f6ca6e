package domain

// Record is one object of the upstream JSON array. Values are kept as
// decoded so they can be written back verbatim.
type Record map[string]any

// Dataset is the ordered collection returned by a source.
type Dataset []Record
