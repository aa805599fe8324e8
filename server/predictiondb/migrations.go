package predictiondb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE prediction(
			id INTEGER PRIMARY KEY,
			uuid TEXT NOT NULL,
			source TEXT NOT NULL,
			time INT NOT NULL,
			detail TEXT
		);
		CREATE UNIQUE INDEX idx_prediction_uuid ON prediction(uuid);
		CREATE INDEX idx_prediction_time ON prediction(time);
	`))

	return migs
}
