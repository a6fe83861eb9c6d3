package history

const schema = `
CREATE TABLE IF NOT EXISTS download_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_title TEXT NOT NULL DEFAULT '',
	video_url TEXT NOT NULL,
	video_id TEXT NOT NULL DEFAULT '',
	platform TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	duration INTEGER NOT NULL DEFAULT 0,
	views INTEGER NOT NULL DEFAULT 0,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	quality TEXT NOT NULL DEFAULT '',
	download_type TEXT NOT NULL DEFAULT '',
	file_size INTEGER NOT NULL DEFAULT 0,
	selector TEXT NOT NULL DEFAULT '',
	user_ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	download_started_at INTEGER,
	download_completed_at INTEGER,
	status TEXT NOT NULL DEFAULT 'initiated',
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_download_history_status ON download_history(status);
CREATE INDEX IF NOT EXISTS idx_download_history_created_at ON download_history(created_at);

CREATE TABLE IF NOT EXISTS download_stats (
	date TEXT PRIMARY KEY,
	total_downloads INTEGER NOT NULL DEFAULT 0,
	video_downloads INTEGER NOT NULL DEFAULT 0,
	audio_downloads INTEGER NOT NULL DEFAULT 0,
	failed_downloads INTEGER NOT NULL DEFAULT 0,
	total_bytes_downloaded INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS popular_videos (
	video_id TEXT PRIMARY KEY,
	platform TEXT NOT NULL DEFAULT '',
	video_title TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	thumbnail_url TEXT NOT NULL DEFAULT '',
	download_count INTEGER NOT NULL DEFAULT 0,
	first_downloaded INTEGER NOT NULL,
	last_downloaded INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_popular_videos_count ON popular_videos(download_count DESC);
`
