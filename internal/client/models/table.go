package models

// Table names double as storage key prefixes and endpoint names:
// "<table>_<userId>" in the cache, "<apiBase>/<table>-sync.php" on the wire.
const (
	TableDocuments           = "documents"
	TableExigences           = "exigences"
	TableMembres             = "membres"
	TableBibliotheque        = "bibliotheque"
	TableCollaboration       = "collaboration"
	TableDocumentGroups      = "document_groups"
	TableExigenceGroups      = "exigence_groups"
	TableBibliothequeGroups  = "bibliotheque_groups"
	TableCollaborationGroups = "collaboration_groups"
)

// AllTables lists every synchronized table, item tables first.
var AllTables = []string{
	TableDocuments,
	TableExigences,
	TableMembres,
	TableBibliotheque,
	TableCollaboration,
	TableDocumentGroups,
	TableExigenceGroups,
	TableBibliothequeGroups,
	TableCollaborationGroups,
}

// GroupTableOf returns the group table paired with an item table.
func GroupTableOf(table string) (string, bool) {
	switch table {
	case TableDocuments:
		return TableDocumentGroups, true
	case TableExigences:
		return TableExigenceGroups, true
	case TableBibliotheque:
		return TableBibliothequeGroups, true
	case TableCollaboration:
		return TableCollaborationGroups, true
	}
	return "", false
}

// IsKnownTable reports whether name is one of AllTables.
func IsKnownTable(name string) bool {
	for _, t := range AllTables {
		if t == name {
			return true
		}
	}
	return false
}
