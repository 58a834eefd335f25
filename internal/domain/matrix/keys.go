package matrix

// StatKey names one measure in a rendered statistics document.  The string
// used for each key depends on the table type and the axis being described.
type StatKey int

const (
	KeyType StatKey = iota

	// One label.
	KeyLabel
	KeyCount
	KeyTotal
	KeyMinTotal
	KeyMinTotalNumber
	KeyMaxTotal
	KeyMaxTotalLabels

	// All labels of an axis: distribution of per-label totals.
	KeyAllTotal
	KeyAllMinTotal
	KeyAllMinTotalNumber
	KeyAllMeanTotal
	KeyAllMedianTotal
	KeyAllMaxTotal
	KeyAllMaxTotalLabels

	// All labels of an axis: distribution of per-label non-zero counts.
	KeyAllCount
	KeyAllMinCount
	KeyAllMinCountNumber
	KeyAllMeanCount
	KeyAllMedianCount
	KeyAllMaxCount
	KeyAllMaxCountLabels
)

// KeySet maps each StatKey to its output name for one axis.
type KeySet map[StatKey]string

// Name returns the output name for k.
func (ks KeySet) Name(k StatKey) string {
	return ks[k]
}

// TableKeys holds the key sets for both axes of a table.  Summary tables
// describe a single entity kind, held in Row.
type TableKeys struct {
	Row    KeySet
	Column KeySet
}

// For returns the key set describing axis a.
func (tk TableKeys) For(a Axis) KeySet {
	if a == Column {
		return tk.Column
	}
	return tk.Row
}

var speciesKeys = KeySet{
	KeyType:           "species",
	KeyLabel:          "species_label",
	KeyCount:          "total_datasets_for_species",
	KeyTotal:          "total_occurrences_for_species",
	KeyMinTotal:       "min_occurrences_for_species",
	KeyMinTotalNumber: "number_of_datasets_with_min_occurrences_for_species",
	KeyMaxTotal:       "max_occurrences_for_species",
	KeyMaxTotalLabels: "datasets_with_max_occurrences_for_species",

	KeyAllTotal:          "total_occurrences_of_all_species",
	KeyAllMinTotal:       "min_occurrences_of_all_species",
	KeyAllMinTotalNumber: "number_of_species_with_min_occurrences_of_all",
	KeyAllMeanTotal:      "mean_occurrences_of_all_species",
	KeyAllMedianTotal:    "median_occurrences_of_all_species",
	KeyAllMaxTotal:       "max_occurrences_of_all_species",
	KeyAllMaxTotalLabels: "species_with_max_occurrences_of_all",

	KeyAllCount:          "total_species_count",
	KeyAllMinCount:       "min_dataset_count_of_all_species",
	KeyAllMinCountNumber: "number_of_species_with_min_dataset_count_of_all",
	KeyAllMeanCount:      "mean_dataset_count_of_all_species",
	KeyAllMedianCount:    "median_dataset_count_of_all_species",
	KeyAllMaxCount:       "max_dataset_count_of_all_species",
	KeyAllMaxCountLabels: "species_with_max_dataset_count_of_all",
}

var datasetKeys = KeySet{
	KeyType:           "dataset",
	KeyLabel:          "dataset_label",
	KeyCount:          "total_species_for_dataset",
	KeyTotal:          "total_occurrences_for_dataset",
	KeyMinTotal:       "min_occurrences_for_dataset",
	KeyMinTotalNumber: "number_of_species_with_min_occurrences_for_dataset",
	KeyMaxTotal:       "max_occurrences_for_dataset",
	KeyMaxTotalLabels: "species_with_max_occurrences_for_dataset",

	KeyAllTotal:          "total_occurrences_of_all_datasets",
	KeyAllMinTotal:       "min_occurrences_of_all_datasets",
	KeyAllMinTotalNumber: "number_of_datasets_with_min_occurrences_of_all",
	KeyAllMeanTotal:      "mean_occurrences_of_all_datasets",
	KeyAllMedianTotal:    "median_occurrences_of_all_datasets",
	KeyAllMaxTotal:       "max_occurrences_of_all_datasets",
	KeyAllMaxTotalLabels: "datasets_with_max_occurrences_of_all",

	KeyAllCount:          "total_dataset_count",
	KeyAllMinCount:       "min_species_count_of_all_datasets",
	KeyAllMinCountNumber: "number_of_datasets_with_min_species_count_of_all",
	KeyAllMeanCount:      "mean_species_count_of_all_datasets",
	KeyAllMedianCount:    "median_species_count_of_all_datasets",
	KeyAllMaxCount:       "max_species_count_of_all_datasets",
	KeyAllMaxCountLabels: "datasets_with_max_species_count_of_all",
}

var tableKeys = map[TableType]TableKeys{
	SpeciesDatasetMatrix:  {Row: speciesKeys, Column: datasetKeys},
	SpeciesDatasetSummary: {Row: speciesKeys},
	DatasetSpeciesSummary: {Row: datasetKeys},
}

// KeysFor returns the statistic key names for table t.
func KeysFor(t TableType) (TableKeys, error) {
	if _, err := t.Meta(); err != nil {
		return TableKeys{}, err
	}
	return tableKeys[t], nil
}
