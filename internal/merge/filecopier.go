package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chatmerge/internal/domain"
	"chatmerge/internal/pkg/config"
)

// CopyRequest - одна ссылка на файл, которую нужно перенести из датасета
// источника в датасет назначения при записи итогового датасета.
type CopyRequest struct {
	SrcRoot domain.DatasetRoot
	DstRoot domain.DatasetRoot
	RelPath string
}

// copierConfig - параметры FileCopier, те же оси настройки, что у
// EnrichmentService (размер пула, таймаут операции, пауза перед повтором),
// только применённые к копированию файлов, а не к вызовам внешнего API.
type copierConfig struct {
	PoolSize int
	OperationTimeout time.Duration
	RetryPause time.Duration
}

// Option - функциональная опция для настройки FileCopier.
type Option func(*FileCopier)

// WithPoolSize задаёт число одновременных воркеров копирования.
func WithPoolSize(n int) Option {
	return func(c *FileCopier) {
		if n > 0 {
			c.config.PoolSize = n
		}
	}
}

// WithOperationTimeout задаёт таймаут одной операции копирования файла.
// Таймаут проверяется перед началом копирования; уже начатое чтение и
// запись файла (io.Copy) по нему не прерываются.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *FileCopier) {
		if d > 0 {
			c.config.OperationTimeout = d
		}
	}
}

// WithRetryPause задаёт паузу перед повторной попыткой после временной
// ошибки копирования.
func WithRetryPause(d time.Duration) Option {
	return func(c *FileCopier) {
		if d > 0 {
			c.config.RetryPause = d
		}
	}
}

// WithLogger задаёт логгер FileCopier.
func WithLogger(l *slog.Logger) Option {
	return func(c *FileCopier) {
		if l != nil {
			c.log = l
		}
	}
}

// FileCopier выполняет конкурентное, идемпотентное копирование файлов,
// на которые ссылаются перенесённые сообщения, из одного корня датасета в
// другой. Идемпотентность: файл, уже существующий в месте назначения, не
// перезаписывается, поэтому прерванное и перезапущенное копирование
// безопасно. Внутреннего состояния между вызовами CopyAll нет.
type FileCopier struct {
	config copierConfig
	log *slog.Logger
}

// New создаёт FileCopier с конфигурацией по умолчанию, переопределяемой
// опциями.
func New(opts ...Option) *FileCopier {
	c := &FileCopier{
		config: copierConfig{
			PoolSize:         config.DefaultCopierPoolSize,
			OperationTimeout: config.DefaultCopyTimeoutSeconds * time.Second,
			RetryPause:       config.DefaultCopierRetryPauseSeconds * time.Second,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type copyResult struct {
	err error
}

// CopyAll копирует все запросы, возвращая первую терминальную ошибку
// (отмена контекста) вместе с объединением ошибок отдельных файлов, если
// таковые были. Транзиентные ошибки файловой системы переставляются в конец
// очереди вместо провала всего вызова.
func (c *FileCopier) CopyAll(ctx context.Context, reqs []CopyRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	c.log.DebugContext(ctx, "starting file copy batch", "files", len(reqs), "pool_size", c.config.PoolSize)

	tasks := make(chan CopyRequest, len(reqs))
	results := make(chan copyResult, len(reqs))
	var wg sync.WaitGroup

	for i := 0; i < c.config.PoolSize; i++ {
		wg.Add(1)
		go c.worker(ctx, &wg, tasks, results)
	}
	for _, r := range reqs {
		tasks <- r
	}

	var errs []error
	finished := 0
	for finished < len(reqs) {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
			}
			finished++
		case <-ctx.Done():
			c.log.WarnContext(ctx, "file copy batch cancelled", "copied", finished, "total", len(reqs))
			return errors.Join(append([]error{fmt.Errorf("file copy cancelled: %w", ctx.Err())}, errs...)...)
		}
	}

	close(tasks)
	wg.Wait()
	close(results)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *FileCopier) worker(ctx context.Context, wg *sync.WaitGroup, tasks chan CopyRequest, results chan<- copyResult) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-tasks:
			if !ok {
				return
			}
			if err := c.copyOne(ctx, req); err != nil {
				if ctx.Err() != nil {
					results <- copyResult{err: err}
					continue
				}
				c.log.WarnContext(ctx, "re-queueing file copy after transient error", "path", req.RelPath, "error", err)
				select {
				case <-time.After(c.config.RetryPause):
				case <-ctx.Done():
				}
				tasks <- req
				continue
			}
			results <- copyResult{}
		}
	}
}

func (c *FileCopier) copyOne(ctx context.Context, req CopyRequest) error {
	opCtx, cancel := context.WithTimeout(ctx, c.config.OperationTimeout)
	defer cancel()
	if err := opCtx.Err(); err != nil {
		return err
	}

	dst := req.DstRoot.Absolute(req.RelPath)
	if _, err := os.Stat(dst); err == nil {
		return nil // уже скопирован в прошлом запуске
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat destination %s: %w", dst, err)
	}

	src := req.SrcRoot.Absolute(req.RelPath)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		// отсутствующий в источнике файл - предупреждение, а не ошибка:
		// сообщение может ссылаться на файл, который экспорт не включил
		c.log.WarnContext(ctx, "referenced file is missing in the source dataset, skipping", "path", req.RelPath)
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", dst, err)
	}

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create destination %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close destination %s: %w", dst, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("finalize %s: %w", dst, err)
	}
	return nil
}
