package drive

import "strings"

// MIME types Drive reports for folders and Google-editor documents.
const (
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeDocument     = "application/vnd.google-apps.document"
	MimeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimePresentation = "application/vnd.google-apps.presentation"

	mimeEditorPrefix = "application/vnd.google-apps."
)

// FileID identifies a remote file or folder.
type FileID string

// RemoteFile describes one entry of a folder listing. Size is the byte
// count Drive reports for binary content; editor documents and folders
// report zero.
type RemoteFile struct {
	ID       FileID
	Name     string
	Size     int64
	MimeType string
}

// IsFolder reports whether the entry is a subfolder.
func (f RemoteFile) IsFolder() bool { return f.MimeType == MimeFolder }

// IsEditorDoc reports whether the entry is a Google-editor document,
// which has no binary content and must be exported rather than fetched.
func (f RemoteFile) IsEditorDoc() bool {
	return strings.HasPrefix(f.MimeType, mimeEditorPrefix) && !f.IsFolder()
}

// Export describes the conversion applied to an editor document.
type Export struct {
	MimeType string
	Ext      string
}

// ExportFor maps an editor MIME type to its download conversion.
// Editor types without one (forms, maps, sites) return ok=false and are
// skipped by callers.
func ExportFor(mimeType string) (Export, bool) {
	switch mimeType {
	case MimeDocument:
		return Export{MimeType: "application/pdf", Ext: ".pdf"}, true
	case MimeSpreadsheet:
		return Export{
			MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Ext:      ".xlsx",
		}, true
	case MimePresentation:
		return Export{
			MimeType: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
			Ext:      ".pptx",
		}, true
	}
	return Export{}, false
}
