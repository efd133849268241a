package usecase

import "time"

const archiveLayout = "2006-01-02_15-04-05"

// ArchiveName names the dump directory of a run after its UTC start second.
func ArchiveName(t time.Time) string {
	return t.UTC().Format(archiveLayout)
}
