package export

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskplanner/api/internal/store"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Sprint v1.2", "Sprint-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "board"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := sanitizeFilename(tt.input); result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := percentEncodeForDataURL(tt.input); result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, ok := ParseFormat(""); !ok || f != FormatPDF {
		t.Fatalf("ParseFormat(\"\") = %q, %v", f, ok)
	}
	if f, ok := ParseFormat("docx"); !ok || f != FormatDOCX {
		t.Fatalf("ParseFormat(docx) = %q, %v", f, ok)
	}
	if _, ok := ParseFormat("odt"); ok {
		t.Fatal("ParseFormat(odt) should fail")
	}
}

func seedBoard(t *testing.T) (*store.SQLStore, store.Board) {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := store.Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "export.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.NewSQLStore(db, store.TxPolicy{Timeout: 5 * time.Second, MaxAttempts: 3})

	ada, _ := st.CreateUser(ctx, store.User{Email: "ada@example.com", Username: "ada", FirstName: "Ada", LastName: "Lovelace", PasswordHash: "x"})
	board, err := st.CreateBoard(ctx, store.Board{Name: "Launch <plan>", Description: "Q3 launch", AuthorID: ada.ID})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	tags, _ := st.ListTags(ctx, board.ID)
	if _, err := st.RenameTag(ctx, tags[0].ID, "urgent"); err != nil {
		t.Fatalf("rename tag: %v", err)
	}
	todo, _ := st.CreateList(ctx, board.ID, "Todo")
	_, _ = st.CreateList(ctx, board.ID, "Done")
	card, _ := st.CreateCard(ctx, todo.ID, "Write press release", "draft + review")
	_ = st.AddCardTag(ctx, card.ID, tags[0].ID)
	_ = st.AddCardParticipant(ctx, card.ID, ada.ID)
	item, _ := st.CreateCheckItem(ctx, card.ID, "outline")
	_, _ = st.ToggleCheckItem(ctx, item.ID)
	_, _ = st.CreateComment(ctx, card.ID, ada.ID, "looks good")
	return st, board
}

func TestExportHTML(t *testing.T) {
	st, board := seedBoard(t)
	svc := NewService(st)

	res, err := svc.Export(context.Background(), Request{BoardID: board.ID, Format: FormatHTML, IncludeComments: true})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "Launch-plan.html" || !strings.HasPrefix(res.MimeType, "text/html") {
		t.Fatalf("unexpected result meta: %s %s", res.Filename, res.MimeType)
	}
	html := string(res.Data)
	for _, want := range []string{
		"Launch &lt;plan&gt;",
		"Ada Lovelace",
		"<h2>Todo</h2>",
		"<h2>Done</h2>",
		"Write press release",
		"urgent",
		"#f35a5a",
		`class="done">outline`,
		"looks good",
		"No cards",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Index(html, "<h2>Todo</h2>") > strings.Index(html, "<h2>Done</h2>") {
		t.Error("lists are not in position order")
	}
}

func TestExportWithoutComments(t *testing.T) {
	st, board := seedBoard(t)
	snap, err := NewService(st).Snapshot(context.Background(), board.ID, false)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Lists) != 2 || len(snap.Lists[0].Cards) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(snap.Lists[0].Cards[0].Comments) != 0 {
		t.Fatal("comments should be omitted")
	}
	if len(snap.Tags) != 1 || snap.Tags[0].Name != "urgent" {
		t.Fatalf("only named tags are listed: %+v", snap.Tags)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	st, board := seedBoard(t)
	_, err := NewService(st).Export(context.Background(), Request{BoardID: board.ID, Format: "odt"})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Export() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExportMissingBoard(t *testing.T) {
	st, _ := seedBoard(t)
	_, err := NewService(st).Export(context.Background(), Request{BoardID: 999, Format: FormatHTML})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Export() error = %v, want ErrNotFound", err)
	}
}

func TestExportPDFWithoutChromium(t *testing.T) {
	if chromiumInstalled() {
		t.Skip("chromium is installed")
	}
	st, board := seedBoard(t)
	_, err := NewService(st).Export(context.Background(), Request{BoardID: board.ID, Format: FormatPDF})
	if !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("Export() error = %v, want ErrPDFDependencyMissing", err)
	}
}
