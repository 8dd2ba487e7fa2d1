package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/planetrip/planet-chat/internal/model"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
)

// trigramThreshold is the minimum pg_trgm similarity for a substring hit.
const trigramThreshold = 0.1

func (s *PostgresStore) SearchMessages(ctx context.Context, actorID int64, q registrystore.SearchQuery) ([]registrystore.SearchResult, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return []registrystore.SearchResult{}, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.PageSizeDefault
	}
	if limit > s.cfg.PageSizeMax {
		limit = s.cfg.PageSizeMax
	}
	if q.PlanetID != nil {
		if _, err := s.findPlanet(ctx, *q.PlanetID); err != nil {
			return nil, err
		}
		if _, err := s.requireMember(ctx, actorID, *q.PlanetID); err != nil {
			return nil, err
		}
	} else if _, err := s.requireActor(ctx, actorID); err != nil {
		return nil, err
	}

	normalized := model.DeriveSearchText(query)
	byID := map[int64]registrystore.SearchResult{}

	// Strategy 1: tokenized full-text with prefix matching. The 'simple'
	// config skips stemming so mixed-script text searches predictably.
	if prefixQuery := toPrefixTsQuery(normalized); prefixQuery != "" {
		rows, err := s.fulltextSearch(ctx, actorID, q.PlanetID, prefixQuery, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			byID[r.MessageID] = r
		}
	}

	// Strategy 2: trigram similarity catches mid-word substrings the
	// tokenizer never sees. Fulltext hits keep their rank.
	if len(normalized) >= 3 {
		rows, err := s.trigramSearch(ctx, actorID, q.PlanetID, normalized, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if _, ok := byID[r.MessageID]; !ok {
				byID[r.MessageID] = r
			}
		}
	}

	results := make([]registrystore.SearchResult, 0, len(byID))
	for _, r := range byID {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Rank != results[j].Rank {
			return results[i].Rank > results[j].Rank
		}
		return results[i].MessageID > results[j].MessageID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *PostgresStore) fulltextSearch(ctx context.Context, actorID int64, planetID *uuid.UUID, prefixQuery string, limit int) ([]registrystore.SearchResult, error) {
	sql := `
		SELECT m.id AS message_id, m.planet_id,
		       ts_rank(m.search_tsv, to_tsquery('simple', ?)) AS score,
		       ts_headline('simple', m.body, to_tsquery('simple', ?),
		           'StartSel=**, StopSel=**, MaxWords=50, MinWords=20') AS highlight
		FROM messages m
		JOIN planets p ON p.id = m.planet_id AND p.deleted_at IS NULL
		JOIN planet_users pu ON pu.planet_id = m.planet_id AND pu.user_id = ?
		WHERE m.deleted_at IS NULL
		  AND m.search_tsv @@ to_tsquery('simple', ?)
	`
	args := []interface{}{prefixQuery, prefixQuery, actorID, prefixQuery}
	if planetID != nil {
		sql += " AND m.planet_id = ?"
		args = append(args, *planetID)
	}
	sql += " ORDER BY score DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	var rows []searchRow
	if err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	return toSearchResults(rows, "fulltext"), nil
}

func (s *PostgresStore) trigramSearch(ctx context.Context, actorID int64, planetID *uuid.UUID, normalized string, limit int) ([]registrystore.SearchResult, error) {
	sql := `
		SELECT m.id AS message_id, m.planet_id,
		       similarity(m.search_text, ?) AS score,
		       NULL AS highlight
		FROM messages m
		JOIN planets p ON p.id = m.planet_id AND p.deleted_at IS NULL
		JOIN planet_users pu ON pu.planet_id = m.planet_id AND pu.user_id = ?
		WHERE m.deleted_at IS NULL
		  AND (m.search_text ILIKE '%' || ? || '%' OR similarity(m.search_text, ?) >= ?)
	`
	args := []interface{}{normalized, actorID, normalized, normalized, trigramThreshold}
	if planetID != nil {
		sql += " AND m.planet_id = ?"
		args = append(args, *planetID)
	}
	sql += " ORDER BY score DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	var rows []searchRow
	if err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("trigram search failed: %w", err)
	}
	return toSearchResults(rows, "trigram"), nil
}

type searchRow struct {
	MessageID int64     `gorm:"column:message_id"`
	PlanetID  uuid.UUID `gorm:"column:planet_id"`
	Score     float64   `gorm:"column:score"`
	Highlight *string   `gorm:"column:highlight"`
}

func toSearchResults(rows []searchRow, kind string) []registrystore.SearchResult {
	results := make([]registrystore.SearchResult, len(rows))
	for i, r := range rows {
		results[i] = registrystore.SearchResult{
			MessageID: r.MessageID,
			PlanetID:  r.PlanetID,
			Rank:      r.Score,
			Kind:      kind,
			Highlight: r.Highlight,
		}
	}
	return results
}

// toPrefixTsQuery converts a plain text query to a PostgreSQL tsquery with
// prefix matching. e.g. "jeju tri" becomes "jeju:* & tri:*"
func toPrefixTsQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	words := strings.Fields(query)
	parts := make([]string, 0, len(words))
	for _, word := range words {
		escaped := escapeTsQueryWord(word)
		if escaped != "" {
			parts = append(parts, escaped+":*")
		}
	}
	return strings.Join(parts, " & ")
}

// escapeTsQueryWord removes characters that have special meaning in tsquery syntax.
func escapeTsQueryWord(word string) string {
	var b strings.Builder
	for _, r := range word {
		switch r {
		case '&', '|', '!', '(', ')', ':', '\'', '\\', '*', '<', '>':
			// skip tsquery special characters
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
