// Package config loads the server list that drives indexing and search.
//
// Each non-comment line of the server file describes one data source:
//
//	name,address,max_depth,save_level[,user,pass],key=value,...
//
// Recognized keys are role (film|scan), group, root, prefix, source
// (local|network|ftp), pool_size, port, timeout and op_deadline. Unknown keys
// are preserved in ServerConfig.Meta. A '#' starts a comment.
package config
