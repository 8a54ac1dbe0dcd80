package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	historyTable          = "history_records"
	historyColID          = "id"
	historyColCreatedAt   = "created_at"
	historyColTitle       = "title"
	historyColSummary     = "summary"
	historyColFullPayload = "full_payload"
)

const textSize = 2147483647

var (
	// HistoryColumns holds the columns for the history_records table.
	HistoryColumns = []*schema.Column{
		{Name: historyColID, Type: field.TypeInt64, Increment: true},
		{Name: historyColCreatedAt, Type: field.TypeInt64},
		{Name: historyColTitle, Type: field.TypeString, Size: textSize},
		{Name: historyColSummary, Type: field.TypeString, Size: textSize},
		{Name: historyColFullPayload, Type: field.TypeString, Size: textSize},
	}
	// HistoryTable holds the schema information for the history_records table.
	HistoryTable = &schema.Table{
		Name:       historyTable,
		Columns:    HistoryColumns,
		PrimaryKey: []*schema.Column{HistoryColumns[0]},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{HistoryTable}
)

// Migrate creates missing tables. Existing rows are never touched.
func Migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrate: create tables: %w", err)
	}
	return nil
}
