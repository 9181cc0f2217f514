package db_test

import "github.com/google/uuid"

func randomId() string {
	return uuid.New().String()
}
