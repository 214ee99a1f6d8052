package mysql

import (
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
)

func TestIsUniqueViolation(t *testing.T) {
	c := New()

	dup := &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if !c.IsUniqueViolation(dup) {
		t.Error("expected 1062 to be a unique violation")
	}
	if !c.IsUniqueViolation(fmt.Errorf("insert key: %w", dup)) {
		t.Error("expected wrapped 1062 to be a unique violation")
	}
	if c.IsUniqueViolation(&mysqldriver.MySQLError{Number: 1146}) {
		t.Error("missing table is not a unique violation")
	}
	if c.IsUniqueViolation(errors.New("boom")) {
		t.Error("plain error is not a unique violation")
	}
}

func TestQuoteIdentifiers(t *testing.T) {
	c := New()
	got := c.QuoteIdentifiers(`SELECT "key", "status" FROM "keys" WHERE "status" = 'active'`)
	want := "SELECT `key`, `status` FROM `keys` WHERE `status` = 'active'"
	if got != want {
		t.Errorf("QuoteIdentifiers = %q, want %q", got, want)
	}
}

func TestIgnoreConflict(t *testing.T) {
	c := New()
	got := c.IgnoreConflict("INSERT INTO `keys` (`key`, `status`) VALUES (?, ?)")
	want := "INSERT INTO `keys` (`key`, `status`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `key` = `key`"
	if got != want {
		t.Errorf("IgnoreConflict = %q, want %q", got, want)
	}
	if got := c.IgnoreConflict("DELETE FROM t"); got != "DELETE FROM t" {
		t.Errorf("IgnoreConflict on non-insert = %q", got)
	}
}
