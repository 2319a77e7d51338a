package db

const upsertCampus = `INSERT INTO campuses (code, name) VALUES ($1, $2) ON CONFLICT (name) DO UPDATE SET code = EXCLUDED.code`
const listCampuses = `SELECT id, name FROM campuses`

const upsertBuilding = `INSERT INTO buildings (campus_id, code, name) VALUES ($1, $2, $3) ON CONFLICT (campus_id, code) DO UPDATE SET name = EXCLUDED.name`
const listBuildings = `SELECT buildings.id, campuses.name, buildings.code FROM buildings JOIN campuses ON buildings.campus_id = campuses.id`

const insertRoom = `INSERT INTO rooms (building_id, code) VALUES ($1, $2) ON CONFLICT (building_id, code) DO NOTHING`
const listRooms = `SELECT rooms.id, campuses.name, buildings.code, rooms.code FROM rooms JOIN buildings ON rooms.building_id = buildings.id JOIN campuses ON buildings.campus_id = campuses.id`

const upsertNUPath = `INSERT INTO nupaths (code, attribute, name) VALUES ($1, $2, $3) ON CONFLICT (code) DO UPDATE SET attribute = EXCLUDED.attribute, name = EXCLUDED.name`
const listNUPaths = `SELECT id, attribute FROM nupaths`

const upsertSubject = `INSERT INTO subjects (code, name) VALUES ($1, $2) ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`
const listSubjects = `SELECT id, code FROM subjects`

const upsertTerm = `INSERT INTO terms (term, name, active_until) VALUES ($1, $2, $3) ON CONFLICT (term) DO UPDATE SET name = EXCLUDED.name, active_until = COALESCE(EXCLUDED.active_until, terms.active_until) RETURNING id`
const selectTermID = `SELECT id FROM terms WHERE term = $1`

const upsertCourse = `INSERT INTO courses (term_id, subject_id, course_number, name, description, min_credits, max_credits, special_topics, prereqs, coreqs, postreqs)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (term_id, subject_id, course_number) DO UPDATE SET
name = EXCLUDED.name, description = EXCLUDED.description, min_credits = EXCLUDED.min_credits, max_credits = EXCLUDED.max_credits,
special_topics = EXCLUDED.special_topics, prereqs = EXCLUDED.prereqs, coreqs = EXCLUDED.coreqs, postreqs = EXCLUDED.postreqs`
const listCourses = `SELECT courses.id, subjects.code || courses.course_number FROM courses JOIN subjects ON courses.subject_id = subjects.id WHERE courses.term_id = $1`
const countStaleCourses = `SELECT count(*) FROM courses JOIN subjects ON courses.subject_id = subjects.id WHERE courses.term_id = $1 AND NOT (subjects.code || courses.course_number = ANY ($2::text[]))`

const deleteCourseNUPaths = `DELETE FROM course_nupaths WHERE course_id IN (SELECT id FROM courses WHERE term_id = $1)`
const insertCourseNUPath = `INSERT INTO course_nupaths (course_id, nupath_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

const upsertSection = `INSERT INTO sections (term_id, course_id, campus_id, crn, name, description, section_number, seat_capacity, seat_remaining, waitlist_capacity, waitlist_remaining, class_type, honors, faculty, xlist, prereqs, coreqs)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (term_id, crn) DO UPDATE SET
course_id = EXCLUDED.course_id, campus_id = EXCLUDED.campus_id, name = EXCLUDED.name, description = EXCLUDED.description,
section_number = EXCLUDED.section_number, seat_capacity = EXCLUDED.seat_capacity, seat_remaining = EXCLUDED.seat_remaining,
waitlist_capacity = EXCLUDED.waitlist_capacity, waitlist_remaining = EXCLUDED.waitlist_remaining, class_type = EXCLUDED.class_type,
honors = EXCLUDED.honors, faculty = EXCLUDED.faculty, xlist = EXCLUDED.xlist, prereqs = EXCLUDED.prereqs, coreqs = EXCLUDED.coreqs`
const listSections = `SELECT id, crn FROM sections WHERE term_id = $1`
const deleteAbsentSections = `DELETE FROM sections WHERE term_id = $1 AND NOT (crn = ANY ($2::text[]))`

const updateSectionCounts = `UPDATE sections SET seat_capacity = $3, seat_remaining = $4, waitlist_capacity = $5, waitlist_remaining = $6 WHERE term_id = $1 AND crn = $2`
const listSectionCounts = `SELECT crn, seat_capacity, seat_remaining, waitlist_capacity, waitlist_remaining FROM sections WHERE term_id = $1`

const upsertMeetingTime = `INSERT INTO meeting_times (term_id, section_id, room_id, days, start_time, end_time) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (section_id, days, start_time, end_time) DO UPDATE SET room_id = EXCLUDED.room_id, term_id = EXCLUDED.term_id`
const deleteAbsentMeetingTimes = `DELETE FROM meeting_times WHERE term_id = $1
AND (section_id, days, start_time, end_time) NOT IN (SELECT * FROM unnest($2::int[], $3::int[], $4::int[], $5::int[]))`
