// Package catalog maps the physical address of a relation file to the
// relation's oid.
//
// WAL records name relations by tablespace, database and relfilenode. The
// oid, which is what a consumer knows the table by, lives in pg_class and
// changes meaning after TRUNCATE, CLUSTER or VACUUM FULL rewrite the file.
package catalog
