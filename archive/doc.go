// Package archive keeps a history of clustering runs.
//
// A Facade returns every result to the caller and forgets it. An Archive
// turns results into Records keyed by a time-ordered UUID and writes them,
// framed and optionally compressed, to a Store:
//
//	arc := archive.New(archive.NewLocalStore(dir),
//		archive.WithCompression(archive.CompressionZstd))
//
//	res, _ := f.KMeans(ctx)
//	rec, _ := arc.Save(ctx, res)
//	again, _ := arc.Load(ctx, rec.ID)
//
// Stores exist for memory, the local filesystem, S3 (package archive/s3)
// and MinIO (package archive/minio). A Catalog, for example the DynamoDB
// catalog in archive/dynamo, additionally receives an append-only entry per
// saved record.
//
// # Frame Format
//
//	magic "ENSR" | version | compression | codec name length | codec name |
//	uncompressed size (u32 LE) | stored size (u32 LE) | crc32c (u32 LE) | payload
//
// A stored size of zero means the payload was kept uncompressed because
// compression did not pay off.
package archive
