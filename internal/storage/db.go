package storage

import (
	"database/sql"

	"bank-portal/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_number TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			holder_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateAccount creates a new account with the given details.
func (db *DB) CreateAccount(accountNumber, passwordHash, holderName, email, phone, address string) (*models.Account, error) {
	result, err := db.conn.Exec(
		"INSERT INTO accounts (account_number, password_hash, holder_name, email, phone, address) VALUES (?, ?, ?, ?, ?, ?)",
		accountNumber, passwordHash, holderName, email, phone, address,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetAccountByID(id)
}

// GetAccountByID retrieves an account by ID.
func (db *DB) GetAccountByID(id int64) (*models.Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, account_number, password_hash, holder_name, email, phone, address, created_at FROM accounts WHERE id = ?",
		id,
	)
	return scanAccount(row)
}

// GetAccountByNumber retrieves an account by its account number.
func (db *DB) GetAccountByNumber(accountNumber string) (*models.Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, account_number, password_hash, holder_name, email, phone, address, created_at FROM accounts WHERE account_number = ?",
		accountNumber,
	)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.AccountNumber, &a.PasswordHash, &a.HolderName, &a.Email, &a.Phone, &a.Address, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAccountProfile updates the mutable profile fields of an account.
func (db *DB) UpdateAccountProfile(a *models.Account) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET holder_name = ?, email = ?, phone = ?, address = ? WHERE id = ?",
		a.HolderName, a.Email, a.Phone, a.Address, a.ID,
	)
	return err
}

// AccountCount returns the number of accounts in the database.
func (db *DB) AccountCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM accounts").Scan(&count)
	return count, err
}

// Get implements the KV interface over the kv table.
func (db *DB) Get(key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set implements the KV interface over the kv table.
func (db *DB) Set(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// Remove implements the KV interface over the kv table.
func (db *DB) Remove(key string) error {
	_, err := db.conn.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}
