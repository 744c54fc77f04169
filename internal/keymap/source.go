package keymap

// Source identifies the kind of data file a node reads.
// Its String form is the column name used in the key map document.
type Source int

const (
	Raw Source = iota
	EXOSIMSCSV
	EXOSIMSJSON
	EXOSIMSPickle
	AYOCSV
	AYOInput
	Snapshot
)

var sourceNames = [...]string{
	Raw:           "RawFile",
	EXOSIMSCSV:    "EXOSIMSCSVFile",
	EXOSIMSJSON:   "EXOSIMSJSONFile",
	EXOSIMSPickle: "EXOSIMSPickleFile",
	AYOCSV:        "AYOCSVFile",
	AYOInput:      "AYOInputFile",
	Snapshot:      "SnapshotFile",
}

func (s Source) String() string {
	if s < 0 || int(s) >= len(sourceNames) {
		return "UnknownFile"
	}
	return sourceNames[s]
}

// Tool returns the simulation tool that writes this kind of file, or "" for generic kinds.
func (s Source) Tool() string {
	switch s {
	case EXOSIMSCSV, EXOSIMSJSON, EXOSIMSPickle:
		return "exosims"
	case AYOCSV, AYOInput:
		return "ayo"
	default:
		return ""
	}
}

// ParseSource maps a key map column name back to its Source.
func ParseSource(name string) (Source, bool) {
	for i, n := range sourceNames {
		if n == name {
			return Source(i), true
		}
	}
	return Raw, false
}

// Sources lists every known kind in declaration order.
func Sources() []Source {
	out := make([]Source, len(sourceNames))
	for i := range sourceNames {
		out[i] = Source(i)
	}
	return out
}
