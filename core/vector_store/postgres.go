package vector_store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/Malowking/textverse/core/common"
	"github.com/Malowking/textverse/core/errors"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresStore PostgreSQL向量数据库实现
type PostgresStore struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
	metric    string
}

// InitializePostgresStore 初始化PostgreSQL向量存储
func InitializePostgresStore(ctx context.Context, config *VectorStoreConfig) (VectorStore, error) {
	pc := config.Postgres
	if pc.Host == "" || pc.User == "" || pc.Database == "" {
		return nil, errors.New(errors.ErrVectorStoreInit, "postgres configuration is incomplete. Required: host, user, database")
	}

	// 构建连接字符串（去掉空密码的 password= 参数）
	var connStr string
	if pc.Password != "" {
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			pc.Host, pc.Port, pc.User, pc.Password, pc.Database, pc.SSLMode)
	} else {
		connStr = fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
			pc.Host, pc.Port, pc.User, pc.Database, pc.SSLMode)
	}

	g.Log().Infof(ctx, "Connecting to PostgreSQL at: %s:%s, database: %s", pc.Host, pc.Port, pc.Database)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, errors.Wrap(errors.ErrVectorStoreInit, err, "create postgres connection pool")
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.ErrVectorStoreInit, err, "ping postgres")
	}

	store, err := NewPostgresStore(pool, config)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err = store.ensureTable(ctx, config.Create); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore 创建PostgreSQL向量存储实例
func NewPostgresStore(pool *pgxpool.Pool, config *VectorStoreConfig) (*PostgresStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pool == nil {
		return nil, fmt.Errorf("postgres pool cannot be nil")
	}
	if !tableNamePattern.MatchString(config.Postgres.Table) {
		return nil, fmt.Errorf("invalid table name %q", config.Postgres.Table)
	}
	metric, err := normalizeMetric(config.Metric)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{
		pool:      pool,
		table:     config.Postgres.Table,
		dimension: config.Dimension,
		metric:    metric,
	}, nil
}

func (p *PostgresStore) ensureTable(ctx context.Context, create bool) error {
	var exists bool
	err := p.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", p.table).Scan(&exists)
	if err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "check table %s", p.table)
	}
	if exists {
		return nil
	}
	if !create {
		return errors.Newf(errors.ErrIndexLoadFailed, "postgres table %s does not exist", p.table)
	}
	if p.dimension <= 0 {
		return errors.New(errors.ErrVectorStoreInit, "embedding.dimensions is required to create a pgvector table")
	}

	if _, err = p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return errors.Wrap(errors.ErrVectorStoreInit, err, "create pgvector extension. Please ensure pgvector is installed for your PostgreSQL version")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	metadata JSONB,
	embedding vector(%d) NOT NULL
)`, p.table, p.dimension)
	if _, err = p.pool.Exec(ctx, ddl); err != nil {
		return errors.Wrapf(errors.ErrVectorStoreInit, err, "create table %s", p.table)
	}
	g.Log().Infof(ctx, "Created pgvector table %s (dim=%d)", p.table, p.dimension)
	return nil
}

// distanceOperator maps the metric onto pgvector's operators. <#> is the negated inner product.
func (p *PostgresStore) distanceOperator() string {
	switch p.metric {
	case MetricCosine:
		return "<=>"
	case MetricIP:
		return "<#>"
	default:
		return "<->"
	}
}

func (p *PostgresStore) Search(ctx context.Context, vector []float64, topK int) ([]*schema.Document, error) {
	if topK <= 0 {
		return nil, errors.Newf(errors.ErrVectorSearch, "topK must be positive, got %d", topK)
	}
	query := fmt.Sprintf(
		"SELECT id, content, metadata, embedding %s $1 AS distance FROM %s ORDER BY embedding %s $1 LIMIT $2",
		p.distanceOperator(), p.table, p.distanceOperator())

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(toFloat32(vector)), topK)
	if err != nil {
		return nil, errors.Wrap(errors.ErrVectorSearch, err, "pgvector search")
	}
	defer rows.Close()

	docs := make([]*schema.Document, 0, topK)
	for rows.Next() {
		var (
			id, content string
			metaRaw     []byte
			distance    float64
		)
		if err = rows.Scan(&id, &content, &metaRaw, &distance); err != nil {
			return nil, errors.Wrap(errors.ErrVectorSearch, err, "scan search row")
		}
		doc := &schema.Document{ID: id, Content: content, MetaData: decodeMetadata(ctx, id, metaRaw)}
		switch p.metric {
		case MetricCosine:
			doc.WithScore(1 - distance)
		case MetricIP:
			doc.WithScore(-distance)
		default:
			doc.WithScore(distanceToScore(distance))
		}
		docs = append(docs, doc)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrVectorSearch, err, "iterate search rows")
	}
	return docs, nil
}

func (p *PostgresStore) Upsert(ctx context.Context, docs []*schema.Document, vectors [][]float64) error {
	if len(docs) != len(vectors) {
		return errors.Newf(errors.ErrVectorInsert, "got %d documents and %d vectors", len(docs), len(vectors))
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt := fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, p.table)
	for i, doc := range docs {
		meta, err := sonic.Marshal(doc.MetaData)
		if err != nil {
			return errors.Wrapf(errors.ErrVectorInsert, err, "encode metadata of %s", doc.ID)
		}
		if _, err = tx.Exec(ctx, stmt, doc.ID, doc.Content, meta, pgvector.NewVector(toFloat32(vectors[i]))); err != nil {
			return errors.Wrapf(errors.ErrVectorInsert, err, "insert chunk %s", doc.ID)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return errors.Wrap(errors.ErrVectorInsert, err, "commit chunks")
	}
	return nil
}

func (p *PostgresStore) DeleteBySource(ctx context.Context, source string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE metadata->>'%s' = $1", p.table, common.MetaSource)
	tag, err := p.pool.Exec(ctx, stmt, source)
	if err != nil {
		return errors.Wrapf(errors.ErrVectorInsert, err, "delete chunks of %s", source)
	}
	g.Log().Debugf(ctx, "Deleted %d old chunks of %s", tag.RowsAffected(), source)
	return nil
}

// Flush is a no-op: Upsert commits its own transaction.
func (p *PostgresStore) Flush(ctx context.Context) error {
	return nil
}

func (p *PostgresStore) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}
