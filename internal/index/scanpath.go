package index

import "strings"

// ScanPath holds the identifiers derived from a scan leaf path
// (.../wafer/lot/film[/date]).
type ScanPath struct {
	Wafer   string `json:"wafer,omitempty"`
	Lot     string `json:"lot,omitempty"`
	Film    string `json:"film,omitempty"`
	Date    string `json:"date,omitempty"`
	LotPath string `json:"lotPath,omitempty"`
}

// IsDateName reports whether a folder name is a scan date: YYYYMMDD, or
// YYYY-MM-DD / YYYY_MM_DD.
func IsDateName(name string) bool {
	switch len(name) {
	case 8:
		return allDigits(name)
	case 10:
		sep := name[4]
		if (sep != '-' && sep != '_') || name[7] != sep {
			return false
		}
		return allDigits(name[:4]) && allDigits(name[5:7]) && allDigits(name[8:])
	}
	return false
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func splitPath(p string) []string {
	p = strings.ReplaceAll(p, `\`, "/")
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// ExtractFilm returns the film name of a leaf path: the folder above a
// trailing date, or the last component when there is no date.
func ExtractFilm(p string) string {
	parts := splitPath(p)
	switch {
	case len(parts) == 0:
		return ""
	case IsDateName(parts[len(parts)-1]) && len(parts) >= 2:
		return parts[len(parts)-2]
	default:
		return parts[len(parts)-1]
	}
}

// ParseScanPath derives wafer, lot, film and date from a leaf path.
func ParseScanPath(p string) ScanPath {
	parts := splitPath(p)
	var sp ScanPath
	if len(parts) == 0 {
		return sp
	}
	if IsDateName(parts[len(parts)-1]) && len(parts) >= 2 {
		sp.Date = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}

	sp.Film = parts[len(parts)-1]
	if len(parts) >= 2 {
		sp.Lot = parts[len(parts)-2]
		sp.LotPath = parentDir(strings.TrimSuffix(trimDate(p, sp.Date), "/"))
	}
	if len(parts) >= 3 {
		sp.Wafer = parts[len(parts)-3]
	}
	return sp
}

// trimDate removes a trailing date component from p.
func trimDate(p, date string) string {
	p = strings.TrimRight(strings.ReplaceAll(p, `\`, "/"), "/")
	if date == "" {
		return p
	}
	return strings.TrimSuffix(p, "/"+date)
}

// parentDir returns the parent of a logical path without cleaning it, so
// "//host/share/x" keeps its UNC prefix.
func parentDir(p string) string {
	p = strings.TrimRight(p, "/")
	i := strings.LastIndex(p, "/")
	switch {
	case i < 0:
		return ""
	case i == 0:
		return "/"
	default:
		return p[:i]
	}
}

// baseName returns the last component of a logical path.
func baseName(p string) string {
	p = strings.TrimRight(p, "/")
	return p[strings.LastIndex(p, "/")+1:]
}
