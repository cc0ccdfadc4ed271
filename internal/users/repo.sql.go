package users

const userColumns = `id, name, email, password_hash, role, password_changed_at, reset_token_hash, reset_token_expires_at, created_at, updated_at`

const insertUser = `INSERT INTO users (` + userColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const updateUser = `UPDATE users
SET name = $2, email = $3, password_hash = $4, role = $5, password_changed_at = $6,
    reset_token_hash = $7, reset_token_expires_at = $8, updated_at = $9
WHERE id = $1`

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

const getUserByResetToken = `SELECT ` + userColumns + ` FROM users WHERE reset_token_hash = $1`

const listUsers = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`

const setResetToken = `UPDATE users
SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = $4
WHERE id = $1`

const clearResetToken = `UPDATE users
SET reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $3
WHERE id = $1 AND reset_token_hash = $2`

const consumeResetToken = `UPDATE users
SET password_hash = $3, password_changed_at = $4,
    reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $4
WHERE reset_token_hash = $1 AND reset_token_expires_at > $2
RETURNING ` + userColumns
