/*
Package cache stores virtual file system snapshots in Redis.

Manager writes each value together with its membership in an index set, in
one MULTI/EXEC transaction, and prunes index entries whose values expired.
SnapshotStore serializes vfs.Snapshot values as JSON under
"<prefix><vfs id>" and indexes them under "<prefix>index" so a task
manager's workspace can be restored after a restart.
*/
package cache
