package drive

import "testing"

func TestRemoteFilePredicates(t *testing.T) {
	tests := []struct {
		name      string
		mimeType  string
		folder    bool
		editorDoc bool
	}{
		{name: "folder", mimeType: MimeFolder, folder: true},
		{name: "document", mimeType: MimeDocument, editorDoc: true},
		{name: "spreadsheet", mimeType: MimeSpreadsheet, editorDoc: true},
		{name: "form", mimeType: "application/vnd.google-apps.form", editorDoc: true},
		{name: "binary", mimeType: "application/pdf"},
		{name: "text", mimeType: "text/plain"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			f := RemoteFile{MimeType: tc.mimeType}
			if f.IsFolder() != tc.folder {
				t.Fatalf("IsFolder() = %v, want %v", f.IsFolder(), tc.folder)
			}
			if f.IsEditorDoc() != tc.editorDoc {
				t.Fatalf("IsEditorDoc() = %v, want %v", f.IsEditorDoc(), tc.editorDoc)
			}
		})
	}
}

func TestExportFor(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		wantExt  string
		wantOK   bool
	}{
		{name: "document-to-pdf", mimeType: MimeDocument, wantExt: ".pdf", wantOK: true},
		{name: "spreadsheet-to-xlsx", mimeType: MimeSpreadsheet, wantExt: ".xlsx", wantOK: true},
		{name: "presentation-to-pptx", mimeType: MimePresentation, wantExt: ".pptx", wantOK: true},
		{name: "form-unsupported", mimeType: "application/vnd.google-apps.form"},
		{name: "binary-unsupported", mimeType: "application/pdf"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			exp, ok := ExportFor(tc.mimeType)
			if ok != tc.wantOK {
				t.Fatalf("ExportFor(%q) ok = %v, want %v", tc.mimeType, ok, tc.wantOK)
			}
			if exp.Ext != tc.wantExt {
				t.Fatalf("ExportFor(%q) ext = %q, want %q", tc.mimeType, exp.Ext, tc.wantExt)
			}
		})
	}
}
