// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/avoronin/picmarket/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже занятым именем.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrImageNotFound возвращается, если изображение не найдено.
	ErrImageNotFound = errors.New("image not found")
	// ErrNotForSale возвращается при попытке купить изображение, не выставленное на продажу.
	ErrNotForSale = errors.New("image is not for sale")
	// ErrInsufficientBalance возвращается, если баланс покупателя меньше цены изображения.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Конфликты сериализации и дедлоки имеет смысл повторить
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя со стартовым балансом из схемы БД.
func (r *PostgresRepository) CreateUser(ctx context.Context, username string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`,
		username, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByUsername возвращает пользователя по имени без учёта регистра.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, balance_cents, created_at
		 FROM users
		 WHERE LOWER(username) = LOWER($1)`,
		username,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.BalanceCents, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, balance_cents, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.BalanceCents, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// CreateImage сохраняет новое изображение и возвращает его идентификатор.
func (r *PostgresRepository) CreateImage(ctx context.Context, img *model.Image) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO images (name, price_cents, for_sale, user_id, extension, data)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		img.Name, img.PriceCents, img.ForSale, img.OwnerID, string(img.Extension), img.Data,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert image: %w", err)
	}
	return id, nil
}

// GetImage возвращает метаданные изображения без бинарного содержимого.
func (r *PostgresRepository) GetImage(ctx context.Context, id int64) (*model.Image, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, price_cents, for_sale, user_id, extension, created_at, updated_at
		 FROM images
		 WHERE id = $1`,
		id,
	)

	img, err := scanImage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("get image: %w", err)
	}

	return img, nil
}

// GetImageData возвращает бинарное содержимое изображения и его расширение.
func (r *PostgresRepository) GetImageData(ctx context.Context, id int64) ([]byte, model.Extension, error) {
	var (
		data []byte
		ext  string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT data, extension FROM images WHERE id = $1`,
		id,
	).Scan(&data, &ext)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrImageNotFound
		}
		return nil, "", fmt.Errorf("get image data: %w", err)
	}

	return data, model.Extension(ext), nil
}

// UpdateImage обновляет поля изображения одним запросом. Если data равен nil,
// бинарное содержимое и расширение сохраняются прежними.
func (r *PostgresRepository) UpdateImage(ctx context.Context, id int64, name string, priceCents int64, forSale bool, data []byte, ext model.Extension) error {
	var (
		cmdTag pgconn.CommandTag
		err    error
	)

	if data == nil {
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE images
			 SET name = $2, price_cents = $3, for_sale = $4, updated_at = now()
			 WHERE id = $1`,
			id, name, priceCents, forSale,
		)
	} else {
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE images
			 SET name = $2, price_cents = $3, for_sale = $4, data = $5, extension = $6, updated_at = now()
			 WHERE id = $1`,
			id, name, priceCents, forSale, data, string(ext),
		)
	}
	if err != nil {
		return fmt.Errorf("update image: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrImageNotFound
	}

	return nil
}

// DeleteImage удаляет изображение безвозвратно.
func (r *PostgresRepository) DeleteImage(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrImageNotFound
	}

	return nil
}

// ListForSale возвращает выставленные на продажу изображения, отфильтрованные
// по подстроке имени и набору расширений. Бинарное содержимое не загружается.
func (r *PostgresRepository) ListForSale(ctx context.Context, filter model.CatalogFilter) ([]model.Image, error) {
	exts := filter.Extensions
	if len(exts) == 0 {
		exts = model.SupportedExtensions
	}

	extStrings := make([]string, 0, len(exts))
	for _, e := range exts {
		extStrings = append(extStrings, string(e))
	}

	// POSITION для пустой подстроки возвращает 1, поэтому пустой фильтр означает "все".
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price_cents, for_sale, user_id, extension, created_at, updated_at
		 FROM images
		 WHERE for_sale = TRUE
		   AND POSITION($1 IN name) > 0
		   AND extension = ANY($2::text[])
		 ORDER BY id`,
		filter.Name, extStrings,
	)
	if err != nil {
		return nil, fmt.Errorf("select catalog: %w", err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, *img)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return images, nil
}

// ListByOwner возвращает все изображения пользователя, включая снятые с продажи.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) ([]model.Image, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price_cents, for_sale, user_id, extension, created_at, updated_at
		 FROM images
		 WHERE user_id = $1
		 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select images by owner: %w", err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, *img)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return images, nil
}

// PurchaseImage выполняет покупку изображения как одну транзакцию: списание
// баланса, перенос владения и снятие с продажи происходят атомарно.
// Возвращает баланс покупателя после операции; при ErrInsufficientBalance —
// его текущий баланс. Конфликты сериализации повторяются.
func (r *PostgresRepository) PurchaseImage(ctx context.Context, buyerID, imageID int64) (int64, error) {
	var balance int64
	err := r.withRetry(ctx, func() error {
		var txErr error
		balance, txErr = r.purchaseImageTx(ctx, buyerID, imageID)
		return txErr
	})
	return balance, err
}

func (r *PostgresRepository) purchaseImageTx(ctx context.Context, buyerID, imageID int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Сначала блокируется строка изображения, затем строка покупателя.
	// Фиксированный порядок исключает дедлок между параллельными покупками.
	var (
		priceCents int64
		forSale    bool
	)
	err = tx.QueryRow(ctx,
		`SELECT price_cents, for_sale FROM images WHERE id = $1 FOR UPDATE`,
		imageID,
	).Scan(&priceCents, &forSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrImageNotFound
		}
		return 0, fmt.Errorf("lock image for update: %w", err)
	}

	if !forSale {
		return 0, ErrNotForSale
	}

	var balanceCents int64
	err = tx.QueryRow(ctx,
		`SELECT balance_cents FROM users WHERE id = $1 FOR UPDATE`,
		buyerID,
	).Scan(&balanceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("lock buyer for update: %w", err)
	}

	if balanceCents < priceCents {
		return balanceCents, ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET balance_cents = balance_cents - $2 WHERE id = $1`,
		buyerID, priceCents,
	)
	if err != nil {
		return 0, fmt.Errorf("debit buyer: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE images SET user_id = $2, for_sale = FALSE, updated_at = now() WHERE id = $1`,
		imageID, buyerID,
	)
	if err != nil {
		return 0, fmt.Errorf("transfer image: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return balanceCents - priceCents, nil
}

func scanImage(row pgx.Row) (*model.Image, error) {
	var (
		img model.Image
		ext string
	)
	err := row.Scan(&img.ID, &img.Name, &img.PriceCents, &img.ForSale, &img.OwnerID, &ext, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		return nil, err
	}
	img.Extension = model.Extension(ext)
	return &img, nil
}
