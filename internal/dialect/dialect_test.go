package dialect

import (
	"testing"

	"github.com/Limetric/dbsyncd/internal/model"
)

func TestNewUnsupportedEngine(t *testing.T) {
	_, err := New(model.ConnectionSpec{Engine: "oracle"})
	if err == nil {
		t.Fatal("New() with unknown engine: error = nil, want error")
	}
}

func TestNewReturnsCorrectDialect(t *testing.T) {
	m, err := New(model.ConnectionSpec{Engine: model.EngineMySQL, Name: "src"})
	if err != nil {
		t.Fatal(err)
	}
	if m.Dialect() != MySQL {
		t.Errorf("Dialect() = %v, want mysql", m.Dialect())
	}
	if m.ConnectionName() != "src" {
		t.Errorf("ConnectionName() = %q, want src", m.ConnectionName())
	}

	p, err := New(model.ConnectionSpec{Engine: model.EnginePostgreSQL, Name: "tgt"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Dialect() != PostgreSQL {
		t.Errorf("Dialect() = %v, want postgresql", p.Dialect())
	}
}

func TestMySQLEscapeIdentifier(t *testing.T) {
	a := newMySQLAdapter(model.ConnectionSpec{})
	tests := map[string]string{
		"users":       "`users`",
		"order":       "`order`",
		"weird`table": "`weird``table`",
	}
	for in, want := range tests {
		if got := a.EscapeIdentifier(in); got != want {
			t.Errorf("EscapeIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
	if a.Placeholder(1) != "?" {
		t.Errorf("Placeholder(1) = %q, want ?", a.Placeholder(1))
	}
}

func TestPostgreSQLEscapeIdentifier(t *testing.T) {
	a := newPostgreSQLAdapter(model.ConnectionSpec{})
	tests := map[string]string{
		"users":       `"users"`,
		"order":       `"order"`,
		`weird"table`: `"weird""table"`,
	}
	for in, want := range tests {
		if got := a.EscapeIdentifier(in); got != want {
			t.Errorf("EscapeIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
	if a.Placeholder(1) != "$1" || a.Placeholder(3) != "$3" {
		t.Errorf("Placeholder() produced wrong markers")
	}
}

func TestMySQLBuildAddColumn(t *testing.T) {
	a := newMySQLAdapter(model.ConnectionSpec{})
	ddl := a.BuildAddColumn("users", model.ColumnDescriptor{Name: "phone", Type: "varchar(20)", Nullable: true})
	want := "ALTER TABLE `users` ADD COLUMN `phone` varchar(20)"
	if ddl != want {
		t.Errorf("BuildAddColumn() = %q, want %q", ddl, want)
	}
}

func TestMySQLBuildDropColumn(t *testing.T) {
	a := newMySQLAdapter(model.ConnectionSpec{})
	ddl := a.BuildDropColumn("users", "phone")
	want := "ALTER TABLE `users` DROP COLUMN `phone`"
	if ddl != want {
		t.Errorf("BuildDropColumn() = %q, want %q", ddl, want)
	}
}

func TestPostgreSQLBuildAddColumn(t *testing.T) {
	a := newPostgreSQLAdapter(model.ConnectionSpec{})
	ddl := a.BuildAddColumn("users", model.ColumnDescriptor{Name: "phone", Type: "text", Nullable: true})
	want := `ALTER TABLE "users" ADD COLUMN "phone" text`
	if ddl != want {
		t.Errorf("BuildAddColumn() = %q, want %q", ddl, want)
	}
}

func TestNormalizeScanned(t *testing.T) {
	if got := normalizeScanned([]byte("hello")); got != "hello" {
		t.Errorf("normalizeScanned([]byte) = %v, want string", got)
	}
	if got := normalizeScanned(42); got != 42 {
		t.Errorf("normalizeScanned(int) = %v, want unchanged", got)
	}
}
