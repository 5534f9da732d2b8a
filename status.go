package campaignd

import "fmt"

// AddonCheckStatus classifies the outcome of upload validation. The numeric
// values are part of the wire protocol: they are sent back to clients in the
// status_code attribute of [error] replies and must stay stable.
type AddonCheckStatus uint32

const (
	StatusSuccess AddonCheckStatus = 0x0

	// Structure errors
	StatusEmptyPack            AddonCheckStatus = 0x100
	StatusBadName              AddonCheckStatus = 0x101
	StatusNameHasMarkup        AddonCheckStatus = 0x102
	StatusIllegalFilename      AddonCheckStatus = 0x103
	StatusFilenameCaseConflict AddonCheckStatus = 0x104
	StatusUnexpectedDelta      AddonCheckStatus = 0x105
	StatusInvalidUTF8Name      AddonCheckStatus = 0x106
	StatusInvalidUTF8Attribute AddonCheckStatus = 0x107

	// Metadata errors
	StatusNoTitle        AddonCheckStatus = 0x200
	StatusTitleHasMarkup AddonCheckStatus = 0x201
	StatusBadType        AddonCheckStatus = 0x202
	StatusNoAuthor       AddonCheckStatus = 0x203
	StatusNoVersion      AddonCheckStatus = 0x204
	StatusNoDescription  AddonCheckStatus = 0x205
	StatusNoEmail        AddonCheckStatus = 0x206
	StatusNoPassphrase   AddonCheckStatus = 0x207

	// Authentication errors
	StatusUnauthorized AddonCheckStatus = 0x300
	StatusDenied       AddonCheckStatus = 0x301

	// Server-side errors
	StatusServerUnspecified     AddonCheckStatus = 0xF000
	StatusServerReadOnly        AddonCheckStatus = 0xF001
	StatusServerAddonsList      AddonCheckStatus = 0xF002
	StatusServerDeltaNoVersions AddonCheckStatus = 0xF003
)

var statusDescriptions = map[AddonCheckStatus]string{
	StatusSuccess:               "The server accepted the add-on.",
	StatusEmptyPack:             "The add-on contains no files.",
	StatusBadName:               "The add-on has an invalid file name.",
	StatusNameHasMarkup:         "The add-on name contains markup.",
	StatusIllegalFilename:       "The add-on contains files or directories with illegal names.",
	StatusFilenameCaseConflict:  "The add-on contains files or directories with case conflicts.",
	StatusUnexpectedDelta:       "The server does not have an older version of the add-on to apply the update to.",
	StatusInvalidUTF8Name:       "The add-on name contains an invalid UTF-8 sequence.",
	StatusInvalidUTF8Attribute:  "The add-on publish information contains an invalid UTF-8 sequence.",
	StatusNoTitle:               "The add-on does not have a title.",
	StatusTitleHasMarkup:        "The add-on title contains markup.",
	StatusBadType:               "The add-on has an invalid type.",
	StatusNoAuthor:              "The add-on does not have an author.",
	StatusNoVersion:             "The add-on does not have a version.",
	StatusNoDescription:         "The add-on does not have a description.",
	StatusNoEmail:               "The add-on does not have an email address.",
	StatusNoPassphrase:          "The add-on does not have a passphrase set.",
	StatusUnauthorized:          "The add-on's passphrase is incorrect.",
	StatusDenied:                "The add-on cannot be published at this time.",
	StatusServerUnspecified:     "Unspecified server error.",
	StatusServerReadOnly:        "The server is in read-only mode.",
	StatusServerAddonsList:      "The server's add-ons list is corrupted.",
	StatusServerDeltaNoVersions: "The server's version list for the add-on is empty.",
}

// Desc returns the human-readable description sent to clients.
func (s AddonCheckStatus) Desc() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return statusDescriptions[StatusServerUnspecified]
}

// String implements fmt.Stringer with the hex form used in logs.
func (s AddonCheckStatus) String() string {
	return fmt.Sprintf("0x%X", uint32(s))
}
