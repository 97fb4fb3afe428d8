// Package models defines the compliance records kept in sync between the
// local cache and the REST API: documents, exigences, membres, library and
// collaboration items, and the groups that organise them.
//
// Every record embeds Meta (id + creation/modification dates) and validates
// its own shape; the synchronization engine is otherwise generic over them.
package models
