package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/model"
)

const listingColumns = `id, seller_id, title, allow_submission, minimum_bid, created_at`

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.Title, &l.AllowSubmission, &l.MinimumBid, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	return &l, nil
}

// GetListing возвращает объявление по идентификатору.
func (q *queries) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	return scanListing(q.db.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
}

// LockListing читает объявление с блокировкой строки (FOR UPDATE).
// Имеет смысл только внутри транзакции: сериализует конкурентные
// подачи и правки предложений по одному объявлению.
func (q *queries) LockListing(ctx context.Context, id string) (*model.Listing, error) {
	return scanListing(q.db.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id))
}

const soomColumns = `id, listing_id, user_id, amount, min_soom, status, rejection_reason, submission_date`

func scanSoom(row pgx.Row) (*model.Soom, error) {
	var s model.Soom
	err := row.Scan(&s.ID, &s.ListingID, &s.UserID, &s.Amount, &s.MinSoom,
		&s.Status, &s.RejectionReason, &s.SubmissionDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSoomNotFound
		}
		return nil, fmt.Errorf("scan soom: %w", err)
	}
	return &s, nil
}

// HighestAmount возвращает максимальную сумму предложения по объявлению
// среди всех статусов либо nil, если предложений нет. Отклонённые и принятые
// предложения учитываются: планка только растёт. При непустом excludeSoomID
// соответствующее предложение исключается из поиска (режим правки).
func (q *queries) HighestAmount(ctx context.Context, listingID, excludeSoomID string) (*int64, error) {
	var highest *int64
	var err error
	if excludeSoomID == "" {
		err = q.db.QueryRow(ctx,
			`SELECT MAX(amount) FROM sooms WHERE listing_id = $1`,
			listingID,
		).Scan(&highest)
	} else {
		err = q.db.QueryRow(ctx,
			`SELECT MAX(amount) FROM sooms WHERE listing_id = $1 AND id <> $2`,
			listingID, excludeSoomID,
		).Scan(&highest)
	}
	if err != nil {
		return nil, fmt.Errorf("select highest amount: %w", err)
	}
	return highest, nil
}

// PendingByUser возвращает открытое предложение покупателя по объявлению
// либо nil, если такого нет.
func (q *queries) PendingByUser(ctx context.Context, listingID string, userID int64) (*model.Soom, error) {
	s, err := scanSoom(q.db.QueryRow(ctx,
		`SELECT `+soomColumns+` FROM sooms
		 WHERE listing_id = $1 AND user_id = $2 AND status = $3`,
		listingID, userID, string(model.SoomStatusPending)))
	if err != nil {
		if errors.Is(err, ErrSoomNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// InsertSoom сохраняет новое предложение.
func (q *queries) InsertSoom(ctx context.Context, soom *model.Soom) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO sooms (id, listing_id, user_id, amount, min_soom, status, submission_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		soom.ID, soom.ListingID, soom.UserID, soom.Amount, soom.MinSoom,
		string(soom.Status), soom.SubmissionDate,
	)
	if err != nil {
		// Частичный уникальный индекс страхует проверку открытого предложения
		// от гонки двух параллельных вставок.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicatePending
		}
		return fmt.Errorf("insert soom: %w", err)
	}
	return nil
}

// GetSoom возвращает предложение по идентификатору.
func (q *queries) GetSoom(ctx context.Context, id string) (*model.Soom, error) {
	return scanSoom(q.db.QueryRow(ctx,
		`SELECT `+soomColumns+` FROM sooms WHERE id = $1`, id))
}

// UpdateSoomStatus переводит предложение в указанный статус.
func (q *queries) UpdateSoomStatus(ctx context.Context, id string, status model.SoomStatus, reason *string) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE sooms SET status = $2, rejection_reason = $3 WHERE id = $1`,
		id, string(status), reason,
	)
	if err != nil {
		return fmt.Errorf("update soom status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSoomNotFound
	}
	return nil
}

// RejectPendingExcept отклоняет все открытые предложения объявления, кроме указанного.
func (q *queries) RejectPendingExcept(ctx context.Context, listingID, soomID string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE sooms SET status = $3
		 WHERE listing_id = $1 AND id <> $2 AND status = $4`,
		listingID, soomID, string(model.SoomStatusRejected), string(model.SoomStatusPending),
	)
	if err != nil {
		return fmt.Errorf("reject pending sooms: %w", err)
	}
	return nil
}

// UpdateSoomAmount обновляет сумму, зафиксированный минимум и дату подачи предложения.
func (q *queries) UpdateSoomAmount(ctx context.Context, id string, amount, minSoom int64, at time.Time) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE sooms SET amount = $2, min_soom = $3, submission_date = $4 WHERE id = $1`,
		id, amount, minSoom, at,
	)
	if err != nil {
		return fmt.Errorf("update soom amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSoomNotFound
	}
	return nil
}

// DeleteSoom удаляет предложение.
func (q *queries) DeleteSoom(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM sooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete soom: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSoomNotFound
	}
	return nil
}

// ListByListing возвращает все предложения объявления по убыванию суммы
// вместе с логином покупателя. Статусы не фильтруются: видна вся история торга.
func (q *queries) ListByListing(ctx context.Context, listingID string) ([]model.ListingSoom, error) {
	rows, err := q.db.Query(ctx,
		`SELECT s.id, s.listing_id, s.user_id, s.amount, s.min_soom, s.status,
		        s.rejection_reason, s.submission_date, u.login
		 FROM sooms s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.listing_id = $1
		 ORDER BY s.amount DESC`,
		listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("select listing sooms: %w", err)
	}
	defer rows.Close()

	var res []model.ListingSoom
	for rows.Next() {
		var ls model.ListingSoom
		if err := rows.Scan(&ls.ID, &ls.ListingID, &ls.UserID, &ls.Amount, &ls.MinSoom,
			&ls.Status, &ls.RejectionReason, &ls.SubmissionDate, &ls.BidderLogin); err != nil {
			return nil, fmt.Errorf("scan listing soom: %w", err)
		}
		res = append(res, ls)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// LastByListing возвращает последнее по дате подачи предложение объявления
// и общее количество предложений. Если предложений нет — (nil, 0, nil).
func (q *queries) LastByListing(ctx context.Context, listingID string) (*model.Soom, int64, error) {
	var total int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM sooms WHERE listing_id = $1`,
		listingID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count sooms: %w", err)
	}

	if total == 0 {
		return nil, 0, nil
	}

	last, err := scanSoom(q.db.QueryRow(ctx,
		`SELECT `+soomColumns+` FROM sooms
		 WHERE listing_id = $1
		 ORDER BY submission_date DESC
		 LIMIT 1`,
		listingID))
	if err != nil {
		return nil, 0, err
	}

	return last, total, nil
}

// ListBySeller возвращает все предложения по объявлениям продавца со счётчиками статусов.
func (q *queries) ListBySeller(ctx context.Context, sellerID int64) ([]model.BoxSoom, model.SoomStats, error) {
	return q.listBox(ctx,
		`SELECT s.id, s.listing_id, s.user_id, s.amount, s.min_soom, s.status,
		        s.rejection_reason, s.submission_date, l.title, l.seller_id
		 FROM sooms s
		 JOIN listings l ON l.id = s.listing_id
		 WHERE l.seller_id = $1
		 ORDER BY s.submission_date DESC`,
		sellerID)
}

// ListByBidder возвращает все предложения покупателя со счётчиками статусов.
func (q *queries) ListByBidder(ctx context.Context, userID int64) ([]model.BoxSoom, model.SoomStats, error) {
	return q.listBox(ctx,
		`SELECT s.id, s.listing_id, s.user_id, s.amount, s.min_soom, s.status,
		        s.rejection_reason, s.submission_date, l.title, l.seller_id
		 FROM sooms s
		 JOIN listings l ON l.id = s.listing_id
		 WHERE s.user_id = $1
		 ORDER BY s.submission_date DESC`,
		userID)
}

func (q *queries) listBox(ctx context.Context, query string, arg any) ([]model.BoxSoom, model.SoomStats, error) {
	rows, err := q.db.Query(ctx, query, arg)
	if err != nil {
		return nil, model.SoomStats{}, fmt.Errorf("select sooms: %w", err)
	}
	defer rows.Close()

	var res []model.BoxSoom
	var stats model.SoomStats
	for rows.Next() {
		var b model.BoxSoom
		if err := rows.Scan(&b.ID, &b.ListingID, &b.UserID, &b.Amount, &b.MinSoom,
			&b.Status, &b.RejectionReason, &b.SubmissionDate, &b.ListingTitle, &b.SellerID); err != nil {
			return nil, model.SoomStats{}, fmt.Errorf("scan soom: %w", err)
		}

		switch b.Status {
		case model.SoomStatusPending:
			stats.Pending++
		case model.SoomStatusAccepted:
			stats.Accepted++
		case model.SoomStatusRejected:
			stats.Rejected++
		}

		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, model.SoomStats{}, fmt.Errorf("rows error: %w", err)
	}

	return res, stats, nil
}
