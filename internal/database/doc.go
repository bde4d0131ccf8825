/*
Package database opens the transcript database through gorm and manages its
connection pool.

Open picks a dialector by driver name (sqlite via the pure-Go glebarez driver,
postgres or mysql) and wraps the handle in a PoolManager, which applies pool
limits, pings on an interval and offers transaction helpers with retry for
transient failures.
*/
package database
