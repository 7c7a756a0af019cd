package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/guregu/null/v6"
	"github.com/urfave/cli/v2"

	"github.com/beanbocchi/stowage/config"
	"github.com/beanbocchi/stowage/internal"
	"github.com/beanbocchi/stowage/internal/journal"
	"github.com/beanbocchi/stowage/internal/model"
	"github.com/beanbocchi/stowage/internal/utils/blake3"
	"github.com/beanbocchi/stowage/internal/utils/progressr"
	"github.com/beanbocchi/stowage/pkg/sdk"
	"github.com/beanbocchi/stowage/pkg/validator"
)

func objectRef(cfg *config.Config, name string) sdk.ObjectRef {
	return sdk.ObjectRef{
		NamespaceName: cfg.Objectstore.Namespace,
		BucketName:    cfg.Objectstore.Bucket,
		ObjectName:    name,
	}
}

func printJSON(v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}

func runGet(c *cli.Context, cfg *config.Config) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: stowage get <object> [file]", 2)
	}
	client := internal.NewSDKClient(cfg, nil, nil)

	stream, err := client.GetObject(c.Context, cfg.Credential.SDK(), sdk.GetObjectParams{ObjectRef: objectRef(cfg, c.Args().Get(0))})
	if err != nil {
		return err
	}
	defer stream.Close()

	var out io.Writer = os.Stdout
	if path := c.Args().Get(1); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		defer f.Close()
		out = f
	}

	hashed := blake3.NewReader(stream)
	n, err := io.Copy(out, hashed)
	if err != nil {
		return fmt.Errorf("download object: %w", err)
	}

	header, _ := stream.Header(c.Context)
	slog.Info("downloaded object", "object", c.Args().Get(0), "bytes", n, "etag", header.Get("ETag"))
	if c.Bool("verify") {
		fmt.Fprintln(os.Stderr, hashed.Sum())
	}
	return nil
}

func runPut(c *cli.Context, cfg *config.Config) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: stowage put <file> [object]", 2)
	}
	path := c.Args().Get(0)
	name := c.Args().Get(1)
	if name == "" {
		name = filepath.Base(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()
	client := internal.NewSDKClient(cfg, nil, j)

	partSize := cfg.Objectstore.PartSize
	if c.IsSet("part-size") {
		partSize = c.Int("part-size")
	}
	params := sdk.PutObjectParams{
		ObjectRef:      objectRef(cfg, name),
		ContentType:    null.NewString(c.String("content-type"), c.IsSet("content-type")),
		PartSize:       partSize,
		AbortOnFailure: cfg.Objectstore.AbortOnFailure || c.Bool("abort-on-failure"),
	}

	progress := progressr.NewReader(f, stat.Size())
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				slog.Info("uploading", "object", name, "progress", fmt.Sprintf("%.1f%%", progress.Progress()*100))
			}
		}
	}()

	result, err := client.PutObject(c.Context, cfg.Credential.SDK(), params, progress)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"uploadId":     result.UploadID,
		"object":       result.ObjectName,
		"parts":        len(result.Parts),
		"size":         result.Size,
		"hash":         result.Hash,
		"etag":         result.ETag,
		"multipartMd5": result.MultipartMD5,
	})
}

func runDelete(c *cli.Context, cfg *config.Config) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: stowage delete <object>", 2)
	}
	client := internal.NewSDKClient(cfg, nil, nil)

	_, err := client.DeleteObject(c.Context, cfg.Credential.SDK(), sdk.DeleteObjectParams{ObjectRef: objectRef(cfg, c.Args().First())})
	return err
}

func runUploads(c *cli.Context, cfg *config.Config) error {
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	params := journal.ListParams{
		PaginationParams: model.PaginationParams{
			Page:  null.Int32From(int32(c.Int("page"))),
			Limit: int32(c.Int("limit")),
		},
		State: null.NewString(c.String("state"), c.IsSet("state")),
	}
	if err := validator.Validate(params); err != nil {
		return err
	}

	uploads, err := j.List(c.Context, params)
	if err != nil {
		return err
	}
	return printJSON(uploads.Data)
}
