/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: sqlite.go
Description: SQLite adapter. Opens the database read-only and streams every user
table in name order, one record per row keyed by column name. Text and numeric
columns keep their storage class; BLOB columns stay bytes.
*/

package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sqliteStream struct {
	base
	db      *gorm.DB
	tables  []string
	table   int
	rows    *sql.Rows
	columns []string
	blob    []bool
	row     int64
}

func openSQLite(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	b := newBase(in)
	f, _, err := in.Source.Materialize(in.Options.SpoolDir)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open("file:"+f.Name()+"?mode=ro"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, b.formatError(err)
	}

	var tables []string
	err = db.WithContext(ctx).Raw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name",
	).Scan(&tables).Error
	if err != nil {
		closeGorm(db)
		return nil, b.formatError(err)
	}

	b.logger.WithField("tables", len(tables)).Debug("Opened sqlite database")
	return &sqliteStream{base: b, db: db, tables: tables}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *sqliteStream) openTable(ctx context.Context) error {
	name := s.tables[s.table]
	rows, err := s.db.WithContext(ctx).Raw("SELECT * FROM " + quoteIdent(name)).Rows()
	if err != nil {
		return err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return err
	}
	s.rows = rows
	s.columns = make([]string, len(types))
	s.blob = make([]bool, len(types))
	for i, t := range types {
		s.columns[i] = t.Name()
		s.blob[i] = strings.EqualFold(t.DatabaseTypeName(), "BLOB")
	}
	s.row = 0
	return nil
}

func (s *sqliteStream) Next(ctx context.Context) (value.Record, error) {
	for {
		if s.rows == nil {
			if s.table >= len(s.tables) {
				return value.Record{}, io.EOF
			}
			if err := s.openTable(ctx); err != nil {
				name := s.tables[s.table]
				s.table = len(s.tables)
				return value.Record{}, s.formatError(fmt.Errorf("table %s: %w", name, err))
			}
		}

		if !s.rows.Next() {
			err := s.rows.Err()
			s.rows.Close()
			s.rows = nil
			s.table++
			if err != nil {
				s.table = len(s.tables)
				return value.Record{}, s.formatError(err)
			}
			continue
		}
		s.row++
		prov := s.prov
		prov.Section = s.tables[s.table]
		prov.Row = s.row

		cells := make([]interface{}, len(s.columns))
		ptrs := make([]interface{}, len(s.columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := s.rows.Scan(ptrs...); err != nil {
			return value.Record{}, s.recordError(prov, err)
		}

		m := value.NewMappingBuilder(len(s.columns))
		for i, name := range s.columns {
			if raw, ok := cells[i].([]byte); ok && !s.blob[i] {
				m.Set(name, value.String(string(raw)))
				continue
			}
			m.Set(name, value.FromNative(cells[i]))
		}
		return s.record(m.Build(), prov), nil
	}
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *sqliteStream) Close() error {
	if s.rows != nil {
		s.rows.Close()
	}
	err := closeGorm(s.db)
	if cerr := s.src.Close(); err == nil {
		err = cerr
	}
	return err
}
